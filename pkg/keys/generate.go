package keys

import (
	"fmt"
	"net/url"
	"strings"
)

var (
	queryEscaper   = strings.NewReplacer("%", "%25", "&", "%26", "=", "%3D")
	queryUnescaper = strings.NewReplacer("%25", "%", "%26", "&", "%3D", "=")
)

func ConceptKey(owner, source, id string) string {
	return fmt.Sprintf(ConceptKeyFmt, seg(owner), seg(source), seg(id))
}

// MappingKey identifies a mapping by its endpoints and type, not by the
// server assigned mapping id, so both sides of a diff agree on it.
func MappingKey(owner, source, mapType, fromURL, toURL string) string {
	return fmt.Sprintf(MappingKeyFmt, seg(owner), seg(source), qv(fromURL), qv(mapType), qv(toURL))
}

func ConceptRefKey(owner, collection, conceptURL string) string {
	return fmt.Sprintf(ConceptRefKeyFmt, seg(owner), seg(collection), qv(conceptURL))
}

func MappingRefKey(owner, collection, mappingURL string) string {
	return fmt.Sprintf(MappingRefKeyFmt, seg(owner), seg(collection), qv(mappingURL))
}

// helpers
func seg(s string) string {
	return url.PathEscape(s)
}

func qv(s string) string {
	return queryEscaper.Replace(s)
}
