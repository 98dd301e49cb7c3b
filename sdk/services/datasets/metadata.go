// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// invalidForUpload is the fixed set of server-populated fields that must
// not be resubmitted with a new version. It is disjoint from every
// user-editable field, so stripping is idempotent.
var invalidForUpload = []string{
	"@id",
	"dct:issued",
	"dct:modified",
	"mediatypes",
	"version_history",
	"auth",
	"dcat:distribution",
}

// Allowed values for the enumerated metadata fields.
var (
	Subjects = []string{
		"Biota", "Boundaries", "Climatology / Meteorology / Atmosphere",
		"Economy", "Elevation", "Environment", "Farming",
		"Geoscientific Information", "Health",
		"Imagery / Base Maps / Earth Cover", "Inland Waters", "Location",
		"Oceans", "Planning / Cadastre", "Society", "Structure",
		"Transportation", "Utilities / Communication",
	}
	Themes = []string{
		"Addresses", "Administrative units", "Agricultural and aquaculture facilities",
		"Area management / restriction / regulation zones & reporting units",
		"Atmospheric conditions", "Bio-geographical regions", "Buildings",
		"Cadastral parcels", "Coordinate reference systems", "Elevation",
		"Energy resources", "Environmental monitoring facilities",
		"Geographical grid systems", "Geographical names", "Geology", "Habitats and biotopes",
		"Human health and safety", "Hydrography", "Land cover", "Land use",
		"Meteorological geographical features", "Mineral resources", "Natural risk zones",
		"Oceanographic geographical features", "Orthoimagery", "Population distribution and demography",
		"Production and industrial facilities", "Protected sites", "Sea regions", "Soil",
		"Species distribution", "Statistical units", "Transport networks", "Utility and governmental services",
	}
	Languages = []string{"en", "cy", "gd", "ga", "fr", "de", "es", "it"}

	UpdateFrequencies = []string{
		"Triennial", "Biennial", "Annual", "Semiannual", "Three times a year",
		"Quarterly", "Bimonthly", "Monthly", "Semimonthly", "Biweekly",
		"Three times a month", "Weekly", "Semiweekly", "Three times a week",
		"Daily", "Continuous", "Irregular",
	}
)

// Entity names an organisation or person with an optional identifier URL.
type Entity struct {
	Name string
	ID   string
}

// Contact is a dataset's point of contact.
type Contact struct {
	Name  string
	Email string
}

// MetadataOverrides carries caller-supplied values applied on top of the
// base metadata document. Nil/empty members leave the document untouched.
type MetadataOverrides struct {
	Title           string
	Description     string
	Identifiers     []string
	Subject         string
	Themes          []string
	Language        string
	Keywords        []string
	Standard        *Entity
	StartDate       *time.Time
	EndDate         *time.Time
	Organisation    *Entity
	People          []Entity
	CreatedDate     *time.Time
	UpdateFrequency string
	Publisher       *Entity
	ContactPoint    *Contact
	License         string
	Rights          string
	VersionMessage  string
}

// ModifyMetadataForUpload prepares the metadata document submitted with a
// dataset upload. When external is supplied it is taken verbatim;
// otherwise the existing document is copied, stripped of the fields the
// server populates itself, and the overrides are applied on top.
func ModifyMetadataForUpload(existing, external map[string]interface{}, o *MetadataOverrides) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if external != nil {
		doc = copyDocument(external)
	} else {
		doc = copyDocument(existing)
		for _, field := range invalidForUpload {
			delete(doc, field)
		}
	}

	if o == nil {
		return doc, nil
	}

	if err := o.validate(); err != nil {
		return nil, err
	}

	setIf(doc, "dct:title", o.Title)
	setIf(doc, "dct:description", o.Description)
	setIf(doc, "dct:subject", o.Subject)
	setIf(doc, "dct:language", o.Language)
	setIf(doc, "dct:accrualPeriodicity", o.UpdateFrequency)
	setIf(doc, "dct:license", o.License)
	setIf(doc, "dct:rights", o.Rights)
	setIf(doc, "dafni_version_note", o.VersionMessage)

	if len(o.Identifiers) > 0 {
		doc["dct:identifier"] = toAnySlice(o.Identifiers)
	}
	if len(o.Themes) > 0 {
		doc["dcat:theme"] = toAnySlice(o.Themes)
	}
	if len(o.Keywords) > 0 {
		doc["dcat:keyword"] = toAnySlice(o.Keywords)
	}
	if o.Standard != nil {
		doc["dct:conformsTo"] = map[string]interface{}{
			"@id":   o.Standard.ID,
			"label": o.Standard.Name,
		}
	}
	if o.StartDate != nil || o.EndDate != nil {
		period, _ := doc["dct:PeriodOfTime"].(map[string]interface{})
		if period == nil {
			period = map[string]interface{}{"type": "dct:PeriodOfTime"}
		}
		if o.StartDate != nil {
			period["time:hasBeginning"] = o.StartDate.Format(time.RFC3339)
		}
		if o.EndDate != nil {
			period["time:hasEnd"] = o.EndDate.Format(time.RFC3339)
		}
		doc["dct:PeriodOfTime"] = period
	}
	if o.Organisation != nil || len(o.People) > 0 {
		var creators []interface{}
		if o.Organisation != nil {
			creators = append(creators, map[string]interface{}{
				"@type":     "foaf:Organization",
				"@id":       o.Organisation.ID,
				"foaf:name": o.Organisation.Name,
			})
		}
		for _, p := range o.People {
			person := map[string]interface{}{
				"@type":     "foaf:Person",
				"foaf:name": p.Name,
			}
			if p.ID != "" {
				person["@id"] = p.ID
			}
			creators = append(creators, person)
		}
		doc["dct:creator"] = creators
	}
	if o.CreatedDate != nil {
		doc["dct:created"] = o.CreatedDate.Format(time.RFC3339)
	}
	if o.Publisher != nil {
		doc["dct:publisher"] = map[string]interface{}{
			"@type":     "foaf:Organization",
			"@id":       o.Publisher.ID,
			"foaf:name": o.Publisher.Name,
		}
	}
	if o.ContactPoint != nil {
		doc["dcat:contactPoint"] = map[string]interface{}{
			"@type":          "vcard:Organization",
			"vcard:fn":       o.ContactPoint.Name,
			"vcard:hasEmail": o.ContactPoint.Email,
		}
	}

	return doc, nil
}

func (o *MetadataOverrides) validate() error {
	if err := checkEnum("subject", o.Subject, Subjects); err != nil {
		return err
	}
	for _, theme := range o.Themes {
		if err := checkEnum("theme", theme, Themes); err != nil {
			return err
		}
	}
	if err := checkEnum("language", o.Language, Languages); err != nil {
		return err
	}
	return checkEnum("update frequency", o.UpdateFrequency, UpdateFrequencies)
}

func checkEnum(field, value string, allowed []string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("invalid %s %q, allowed values are: %s", field, value, strings.Join(allowed, ", "))
}

func setIf(doc map[string]interface{}, key, value string) {
	if value != "" {
		doc[key] = value
	}
}

func toAnySlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// copyDocument deep-copies the JSON document so callers keep their input.
func copyDocument(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyDocument(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, el := range t {
			out[i] = copyValue(el)
		}
		return out
	default:
		return v
	}
}
