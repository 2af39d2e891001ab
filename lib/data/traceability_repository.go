package data

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"changecontrol/lib/models"
	"changecontrol/lib/workflow"

	"github.com/sirupsen/logrus"
)

// TraceabilityRepository reconstructs ECR/ECO/ECN lineage for a text query
type TraceabilityRepository interface {
	SearchTraceability(ctx context.Context, orgID int64, query string) (*models.TraceabilityResult, error)
}

// TraceabilityDao implements TraceabilityRepository. It only reads the store.
type TraceabilityDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

// NewTraceabilityDao creates a new instance of TraceabilityDao
func NewTraceabilityDao(db *sql.DB, logger *logrus.Logger) TraceabilityRepository {
	return &TraceabilityDao{DB: db, Logger: logger}
}

// nodeKey deduplicates chain nodes across match and expansion passes
type nodeKey struct {
	entityType string
	id         int64
}

// chainMatch pairs a text match with the ECO chain it belongs to (0 when unbundled)
type chainMatch struct {
	node  models.ChainNode
	ecoID int64
}

// SearchTraceability finds all ECRs, ECOs and ECNs in the organization whose
// number, title or description contains the query, then expands every matched
// chain so each linked entity appears as its own node with lineage populated.
// A single matching ECR that is bundled and promoted therefore yields three
// nodes. The flattened result is sorted most recent first.
func (dao *TraceabilityDao) SearchTraceability(ctx context.Context, orgID int64, query string) (*models.TraceabilityResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &workflow.ValidationError{Message: "search query is required"}
	}

	dao.Logger.WithFields(logrus.Fields{
		"org_id": orgID,
		"query":  query,
	}).Info("Starting traceability search")

	pattern := "%" + query + "%"

	matches := []chainMatch{}

	ecrMatches, err := dao.searchECRs(ctx, orgID, pattern)
	if err != nil {
		return nil, err
	}
	matches = append(matches, ecrMatches...)

	ecoMatches, err := dao.searchECOs(ctx, orgID, pattern)
	if err != nil {
		return nil, err
	}
	matches = append(matches, ecoMatches...)

	ecnMatches, err := dao.searchECNs(ctx, orgID, pattern)
	if err != nil {
		return nil, err
	}
	matches = append(matches, ecnMatches...)

	nodes := []models.ChainNode{}
	seen := map[nodeKey]bool{}

	add := func(node models.ChainNode) {
		key := nodeKey{node.EntityType, node.ID}
		if seen[key] {
			return
		}
		seen[key] = true
		nodes = append(nodes, node)
	}

	// Expand each matched chain once. Expansion adds the chain's ECO, ECRs
	// and ECNs as full nodes, so the dedupe must see these before the bare
	// matched nodes below.
	expanded := map[int64]bool{}
	for _, match := range matches {
		if match.ecoID == 0 || expanded[match.ecoID] {
			continue
		}
		expanded[match.ecoID] = true
		if err := dao.expandChain(ctx, match.ecoID, add); err != nil {
			return nil, err
		}
	}

	// Matches outside any chain, typically unbundled ECRs
	for _, match := range matches {
		add(match.node)
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].CreatedAt.After(nodes[j].CreatedAt)
	})

	return &models.TraceabilityResult{
		Query:        query,
		TotalResults: len(nodes),
		Chains:       nodes,
	}, nil
}

// expandChain loads the full ECR -> ECO -> ECN chain for one ECO and feeds
// every member through add with its lineage links set
func (dao *TraceabilityDao) expandChain(ctx context.Context, ecoID int64, add func(models.ChainNode)) error {
	ecoNode, err := dao.getECONode(ctx, ecoID)
	if err != nil {
		return err
	}
	if ecoNode == nil {
		return nil
	}

	ecrNodes, err := dao.getECRNodesByECO(ctx, ecoID)
	if err != nil {
		return err
	}
	ecnNodes, err := dao.getECNNodesByECO(ctx, ecoID)
	if err != nil {
		return err
	}

	ecoLink := chainLinkOf(*ecoNode)
	ecrLinks := chainLinksOf(ecrNodes)
	ecnLinks := chainLinksOf(ecnNodes)

	ecoNode.LinkedECRs = ecrLinks
	ecoNode.ChildECNs = ecnLinks
	add(*ecoNode)

	for i := range ecrNodes {
		parent := ecoLink
		ecrNodes[i].ChildECO = &parent
		ecrNodes[i].ChildECNs = ecnLinks
		add(ecrNodes[i])
	}

	for i := range ecnNodes {
		parent := ecoLink
		ecnNodes[i].ParentECO = &parent
		ecnNodes[i].LinkedECRs = ecrLinks
		add(ecnNodes[i])
	}

	return nil
}

func chainLinkOf(node models.ChainNode) models.ChainLink {
	return models.ChainLink{
		ID:         node.ID,
		EntityType: node.EntityType,
		Number:     node.Number,
		Title:      node.Title,
		Status:     node.Status,
	}
}

func chainLinksOf(nodes []models.ChainNode) []models.ChainLink {
	links := make([]models.ChainLink, 0, len(nodes))
	for _, node := range nodes {
		links = append(links, chainLinkOf(node))
	}
	return links
}

func (dao *TraceabilityDao) searchECRs(ctx context.Context, orgID int64, pattern string) ([]chainMatch, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT e.id, e.ecr_number, e.title, e.status, e.created_at, e.eco_id,
		       u.id, CONCAT(u.first_name, ' ', u.last_name) as submitter_name
		FROM change.ecrs e
		LEFT JOIN iam.users u ON e.submitter_id = u.id
		WHERE e.org_id = $1
		  AND (e.ecr_number ILIKE $2 OR e.title ILIKE $2 OR e.description ILIKE $2)`,
		orgID, pattern)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	defer rows.Close()

	matches := []chainMatch{}
	for rows.Next() {
		var node models.ChainNode
		var ecoID sql.NullInt64
		var submitterID sql.NullInt64
		var submitterName sql.NullString

		err := rows.Scan(&node.ID, &node.Number, &node.Title, &node.Status,
			&node.CreatedAt, &ecoID, &submitterID, &submitterName)
		if err != nil {
			return nil, &workflow.StoreError{Err: err}
		}

		node.EntityType = models.EntityTypeECR
		if submitterID.Valid {
			node.Submitter = &models.UserRef{ID: submitterID.Int64, Name: submitterName.String}
		}

		matches = append(matches, chainMatch{node: node, ecoID: ecoID.Int64})
	}

	return matches, rows.Err()
}

func (dao *TraceabilityDao) searchECOs(ctx context.Context, orgID int64, pattern string) ([]chainMatch, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT o.id, o.eco_number, o.title, o.status, o.created_at,
		       u.id, CONCAT(u.first_name, ' ', u.last_name) as submitter_name
		FROM change.ecos o
		LEFT JOIN iam.users u ON o.submitter_id = u.id
		WHERE o.org_id = $1
		  AND (o.eco_number ILIKE $2 OR o.title ILIKE $2 OR o.description ILIKE $2)`,
		orgID, pattern)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	defer rows.Close()

	matches := []chainMatch{}
	for rows.Next() {
		var node models.ChainNode
		var submitterID sql.NullInt64
		var submitterName sql.NullString

		err := rows.Scan(&node.ID, &node.Number, &node.Title, &node.Status,
			&node.CreatedAt, &submitterID, &submitterName)
		if err != nil {
			return nil, &workflow.StoreError{Err: err}
		}

		node.EntityType = models.EntityTypeECO
		if submitterID.Valid {
			node.Submitter = &models.UserRef{ID: submitterID.Int64, Name: submitterName.String}
		}

		matches = append(matches, chainMatch{node: node, ecoID: node.ID})
	}

	return matches, rows.Err()
}

func (dao *TraceabilityDao) searchECNs(ctx context.Context, orgID int64, pattern string) ([]chainMatch, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT n.id, n.ecn_number, n.title, n.status, n.created_at, n.eco_id,
		       u.id, CONCAT(u.first_name, ' ', u.last_name) as submitter_name
		FROM change.ecns n
		LEFT JOIN iam.users u ON n.submitter_id = u.id
		WHERE n.org_id = $1
		  AND (n.ecn_number ILIKE $2 OR n.title ILIKE $2 OR n.description ILIKE $2)`,
		orgID, pattern)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	defer rows.Close()

	matches := []chainMatch{}
	for rows.Next() {
		var node models.ChainNode
		var ecoID int64
		var submitterID sql.NullInt64
		var submitterName sql.NullString

		err := rows.Scan(&node.ID, &node.Number, &node.Title, &node.Status,
			&node.CreatedAt, &ecoID, &submitterID, &submitterName)
		if err != nil {
			return nil, &workflow.StoreError{Err: err}
		}

		node.EntityType = models.EntityTypeECN
		if submitterID.Valid {
			node.Submitter = &models.UserRef{ID: submitterID.Int64, Name: submitterName.String}
		}

		matches = append(matches, chainMatch{node: node, ecoID: ecoID})
	}

	return matches, rows.Err()
}

func (dao *TraceabilityDao) getECONode(ctx context.Context, ecoID int64) (*models.ChainNode, error) {
	var node models.ChainNode
	var submitterID sql.NullInt64
	var submitterName sql.NullString

	err := dao.DB.QueryRowContext(ctx, `
		SELECT o.id, o.eco_number, o.title, o.status, o.created_at,
		       u.id, CONCAT(u.first_name, ' ', u.last_name) as submitter_name
		FROM change.ecos o
		LEFT JOIN iam.users u ON o.submitter_id = u.id
		WHERE o.id = $1`, ecoID).Scan(&node.ID, &node.Number, &node.Title,
		&node.Status, &node.CreatedAt, &submitterID, &submitterName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}

	node.EntityType = models.EntityTypeECO
	if submitterID.Valid {
		node.Submitter = &models.UserRef{ID: submitterID.Int64, Name: submitterName.String}
	}
	return &node, nil
}

func (dao *TraceabilityDao) getECRNodesByECO(ctx context.Context, ecoID int64) ([]models.ChainNode, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT e.id, e.ecr_number, e.title, e.status, e.created_at,
		       u.id, CONCAT(u.first_name, ' ', u.last_name) as submitter_name
		FROM change.ecrs e
		LEFT JOIN iam.users u ON e.submitter_id = u.id
		WHERE e.eco_id = $1
		ORDER BY e.id`, ecoID)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	defer rows.Close()

	nodes := []models.ChainNode{}
	for rows.Next() {
		var node models.ChainNode
		var submitterID sql.NullInt64
		var submitterName sql.NullString

		err := rows.Scan(&node.ID, &node.Number, &node.Title, &node.Status,
			&node.CreatedAt, &submitterID, &submitterName)
		if err != nil {
			return nil, &workflow.StoreError{Err: err}
		}

		node.EntityType = models.EntityTypeECR
		if submitterID.Valid {
			node.Submitter = &models.UserRef{ID: submitterID.Int64, Name: submitterName.String}
		}
		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}

func (dao *TraceabilityDao) getECNNodesByECO(ctx context.Context, ecoID int64) ([]models.ChainNode, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT n.id, n.ecn_number, n.title, n.status, n.created_at,
		       u.id, CONCAT(u.first_name, ' ', u.last_name) as submitter_name
		FROM change.ecns n
		LEFT JOIN iam.users u ON n.submitter_id = u.id
		WHERE n.eco_id = $1
		ORDER BY n.id`, ecoID)
	if err != nil {
		return nil, &workflow.StoreError{Err: err}
	}
	defer rows.Close()

	nodes := []models.ChainNode{}
	for rows.Next() {
		var node models.ChainNode
		var submitterID sql.NullInt64
		var submitterName sql.NullString

		err := rows.Scan(&node.ID, &node.Number, &node.Title, &node.Status,
			&node.CreatedAt, &submitterID, &submitterName)
		if err != nil {
			return nil, &workflow.StoreError{Err: err}
		}

		node.EntityType = models.EntityTypeECN
		if submitterID.Valid {
			node.Submitter = &models.UserRef{ID: submitterID.Int64, Name: submitterName.String}
		}
		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}
