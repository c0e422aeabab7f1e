package keys

const (
	// notation dictionary for key formats:
	// <owner>, <source>, <collection>, <id> = path escaped segments
	// <url> = concept or mapping url, query escaped (% & = only)
	// concept keys double as the concept url used by mappings and references

	ConceptKeyFmt    = "/orgs/%s/sources/%s/concepts/%s/"                       // /orgs/<owner>/sources/<source>/concepts/<id>/
	MappingKeyFmt    = "/orgs/%s/sources/%s/mappings/?from=%s&maptype=%s&to=%s" // /orgs/<owner>/sources/<source>/mappings/?from=<url>&maptype=<type>&to=<url>
	ConceptRefKeyFmt = "/orgs/%s/collections/%s/references/?concept=%s"         // /orgs/<owner>/collections/<collection>/references/?concept=<url>
	MappingRefKeyFmt = "/orgs/%s/collections/%s/references/?mapping=%s"         // /orgs/<owner>/collections/<collection>/references/?mapping=<url>

	orgsSegment        = "orgs"
	sourcesSegment     = "sources"
	collectionsSegment = "collections"
	conceptsSegment    = "concepts"
	mappingsSegment    = "mappings"
	referencesSegment  = "references"
)
