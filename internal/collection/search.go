package collection

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Hit is one search result. Distance is the Levenshtein distance between the
// query and the matched text; lower is closer.
type Hit struct {
	Collection  string
	RequestID   string
	DisplayName string
	Distance    int
}

type searchTarget struct {
	collection string
	id         string
	name       string
}

// Search fuzzy-matches query against display names, ids and collection names
// across every collection. An empty query returns nothing.
func (ix *Index) Search(query string) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	names, err := ix.Collections()
	if err != nil {
		return nil, err
	}

	var targets []searchTarget
	var keys []string
	for _, name := range names {
		entries, _, err := ix.load(name)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			targets = append(targets, searchTarget{
				collection: name,
				id:         entry.FileName,
				name:       entry.Name(),
			})
			keys = append(keys, name+"/"+entry.Name()+" "+entry.FileName)
		}
	}

	ranks := fuzzy.RankFindFold(query, keys)
	sort.Stable(ranks)
	hits := make([]Hit, 0, len(ranks))
	for _, r := range ranks {
		t := targets[r.OriginalIndex]
		hits = append(hits, Hit{
			Collection:  t.collection,
			RequestID:   t.id,
			DisplayName: t.name,
			Distance:    r.Distance,
		})
	}
	return hits, nil
}
