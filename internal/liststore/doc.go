package liststore

import (
	"encoding/json"

	"github.com/google/uuid"

	"chicklist/internal/docstore"
	"chicklist/internal/model"
	"chicklist/internal/sharecode"
)

// docFromList encodes a list for a full-document write.
func docFromList(l model.List) docstore.Document {
	data, err := json.Marshal(l)
	if err != nil {
		return nil
	}
	var doc docstore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc
}

// listFromDoc decodes a remote snapshot and repairs it on ingest: a missing
// id is synthesized fresh, a missing shareCode is assigned freshly, and an
// existing shareCode is never overwritten.
func listFromDoc(doc docstore.Document) (model.List, bool) {
	data, err := json.Marshal(doc)
	if err != nil {
		return model.List{}, false
	}
	var l model.List
	if err := json.Unmarshal(data, &l); err != nil {
		return model.List{}, false
	}

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.ShareCode == "" {
		code, err := sharecode.Generate()
		if err != nil {
			return model.List{}, false
		}
		l.ShareCode = code
	}
	if l.Items == nil {
		l.Items = []model.Item{}
	}
	return l, true
}
