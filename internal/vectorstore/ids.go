package vectorstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// PointID derives a stable identifier for a document chunk as a namespace
// UUID (v5) of the sorted metadata JSON and the chunk text. Byte-identical
// (metadata, text) pairs always map to the same id, making ingestion
// idempotent: re-adding the same content upserts instead of duplicating.
func PointID(doc Document) string {
	raw := metadataBlob(doc.Metadata) + "::" + doc.Text
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(raw)).String()
}

// metadataBlob renders metadata as JSON with sorted keys so id derivation
// is independent of map iteration order.
func metadataBlob(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		keyBlob, _ := json.Marshal(k)
		b.Write(keyBlob)
		b.WriteString(": ")
		valBlob, err := json.Marshal(metadata[k])
		if err != nil {
			valBlob = []byte(fmt.Sprintf("%q", fmt.Sprint(metadata[k])))
		}
		b.Write(valBlob)
	}
	b.WriteByte('}')
	return b.String()
}
