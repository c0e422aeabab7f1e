package dhis2

import (
	"strconv"

	"datimsync/pkg/models"
	"datimsync/pkg/snapshot"
	"datimsync/pkg/syncerr"
)

// Options carries the target repository and the active dataset table for one
// import batch.
type Options struct {
	Batch     string
	Owner     string
	OwnerType string
	Source    string
	// DatasetRepos maps a DHIS2 dataset id to the OCL collection id that
	// mirrors it.
	DatasetRepos map[string]string
}

// Counts summarizes one transform. Reference counts are distinct records.
type Counts struct {
	Indicators       int                            `json:"indicators"`
	Disaggregates    int                            `json:"disaggregates"`
	Mappings         int                            `json:"mappings"`
	IndicatorRefs    int                            `json:"indicator_refs"`
	DisaggregateRefs int                            `json:"disaggregate_refs"`
	UnknownDatasets  int                            `json:"unknown_datasets"`
	Unknown          []*syncerr.UnknownDatasetError `json:"-"`
}

// Validate checks every data element for the fields the transform needs and
// returns the first problem found.
func Validate(exp *Export, batch string) error {
	for i, de := range exp.DataElements {
		field := ""
		switch {
		case de.Code == nil || *de.Code == "":
			field = "code"
		case de.CategoryCombo == nil:
			field = "categoryCombo"
		case de.DataSetElements == nil:
			field = "dataSetElements"
		}
		if field != "" {
			return &syncerr.MalformedExportError{
				Batch: batch, ResourceType: string(models.ResourceConcept), Key: de.ID, Field: field, Index: i,
			}
		}
		for j, coc := range de.CategoryCombo.CategoryOptionCombos {
			if coc.Code == "" {
				return &syncerr.MalformedExportError{
					Batch: batch, ResourceType: string(models.ResourceConcept), Key: de.ID,
					Field: "categoryCombo.categoryOptionCombos[" + strconv.Itoa(j) + "].code", Index: i,
				}
			}
		}
	}
	return nil
}

// Transform converts a DHIS2 export into the canonical partition for one
// batch. The export is validated in full first, so a malformed element never
// yields a partial partition.
func Transform(exp *Export, opt Options) (*snapshot.Partition, Counts, error) {
	var cnt Counts
	if err := Validate(exp, opt.Batch); err != nil {
		return nil, cnt, err
	}
	p := snapshot.NewPartition()
	for _, de := range exp.DataElements {
		ind := indicatorConcept(de, opt)
		if _, seen := p.Concepts[ind.Key()]; !seen {
			cnt.Indicators++
		}
		indURL := p.SetConcept(ind)

		disURLs := make([]string, 0, len(de.CategoryCombo.CategoryOptionCombos))
		for _, coc := range de.CategoryCombo.CategoryOptionCombos {
			disURL, added := p.AddConcept(disaggregateConcept(coc, opt))
			if added {
				cnt.Disaggregates++
			}
			disURLs = append(disURLs, disURL)

			m := models.Mapping{
				Owner: opt.Owner, OwnerType: opt.OwnerType, Source: opt.Source,
				MapType: models.MapTypeHasOption, FromConceptURL: indURL, ToConceptURL: disURL,
			}
			if _, added := p.AddMapping(m); added {
				cnt.Mappings++
			}
		}

		for _, dse := range *de.DataSetElements {
			collection, ok := opt.DatasetRepos[dse.DataSet.ID]
			if !ok {
				cnt.UnknownDatasets++
				cnt.Unknown = append(cnt.Unknown, &syncerr.UnknownDatasetError{
					Batch: opt.Batch, DatasetID: dse.DataSet.ID, Key: indURL,
				})
				continue
			}
			if _, added := p.AddReference(ref(opt, collection, indURL)); added {
				cnt.IndicatorRefs++
			}
			for _, u := range disURLs {
				if _, added := p.AddReference(ref(opt, collection, u)); added {
					cnt.DisaggregateRefs++
				}
			}
		}
	}
	return p, cnt, nil
}

func indicatorConcept(de DataElement, opt Options) models.Concept {
	c := models.Concept{
		ID:           *de.Code,
		ConceptClass: models.ConceptClassIndicator,
		Datatype:     models.DatatypeNumeric,
		Owner:        opt.Owner,
		OwnerType:    opt.OwnerType,
		Source:       opt.Source,
		ExternalID:   de.ID,
		Names: []models.Name{{
			Name: de.Name, NameType: models.NameTypeFullySpecified, Locale: models.LocaleEnglish, LocalePreferred: true,
		}},
	}
	if de.ShortName != "" {
		c.Names = append(c.Names, models.Name{
			Name: de.ShortName, NameType: models.NameTypeShort, Locale: models.LocaleEnglish,
		})
	}
	if de.Description != "" {
		c.Descriptions = []models.Description{{
			Description: de.Description, DescriptionType: models.DescriptionTypeDescription,
			Locale: models.LocaleEnglish, LocalePreferred: true,
		}}
	}
	return c
}

func disaggregateConcept(coc CategoryOptionCombo, opt Options) models.Concept {
	return models.Concept{
		ID:           coc.Code,
		ConceptClass: models.ConceptClassDisaggregate,
		Datatype:     models.DatatypeNone,
		Owner:        opt.Owner,
		OwnerType:    opt.OwnerType,
		Source:       opt.Source,
		ExternalID:   coc.ID,
		Names: []models.Name{{
			Name: coc.Name, NameType: models.NameTypeFullySpecified, Locale: models.LocaleEnglish, LocalePreferred: true,
		}},
	}
}

func ref(opt Options, collection, conceptURL string) models.Reference {
	return models.Reference{Owner: opt.Owner, OwnerType: opt.OwnerType, Collection: collection, ConceptURL: conceptURL}
}
