package incident

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// incidentDocument is the indexed shape of an incident.
type incidentDocument struct {
	NodeID    string `json:"node_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	RootCause string `json:"root_cause"`
	Summary   string `json:"summary"`
}

// SearchIndex is a read-side full-text index over recorded incidents.
// It never influences decisions; it only serves operator queries.
type SearchIndex struct {
	index bleve.Index
}

// NewSearchIndex creates an in-memory incident index.
func NewSearchIndex() (*SearchIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create incident index: %w", err)
	}
	return &SearchIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping.AddFieldMappingsAt("summary", textFieldMapping)
	docMapping.AddFieldMappingsAt("node_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("from", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("to", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("root_cause", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Add indexes one incident.
func (s *SearchIndex) Add(inc Incident) error {
	doc := incidentDocument{
		NodeID:    inc.NodeID,
		From:      string(inc.From),
		To:        string(inc.To),
		RootCause: inc.RootCause,
		Summary: fmt.Sprintf("%s risk %s to %s root cause %s",
			inc.NodeID, inc.From, inc.To, inc.RootCause),
	}
	if err := s.index.Index(inc.ID, doc); err != nil {
		return fmt.Errorf("failed to index incident: %w", err)
	}
	return nil
}

// Search returns the IDs of up to limit incidents matching the query,
// best match first.
func (s *SearchIndex) Search(queryText string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	searchReq := bleve.NewSearchRequest(bleve.NewMatchQuery(queryText))
	searchReq.Size = limit

	result, err := s.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("incident search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// ForNode returns the IDs of indexed incidents for an exact node ID.
func (s *SearchIndex) ForNode(nodeID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	termQuery := bleve.NewTermQuery(nodeID)
	termQuery.SetField("node_id")

	searchReq := bleve.NewSearchRequest(termQuery)
	searchReq.Size = limit

	result, err := s.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("incident search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close releases the index.
func (s *SearchIndex) Close() error {
	return s.index.Close()
}
