package graph

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/weftlabs/weft-backend/internal/platform/logger"
	"github.com/weftlabs/weft-backend/internal/platform/neo4jdb"
)

// Store is the graph side of the knowledge base. Every node and relationship
// carries parent_group_id so counts and purges stay scoped to one group, and
// everything is written with MERGE keyed on the source-side id so chunk
// re-processing is idempotent.
type Store interface {
	MergeNode(ctx context.Context, node Node) error
	MergeEdge(ctx context.Context, edge Edge) error
	NodeCount(ctx context.Context, parentGroupID string) (int, error)
	EdgeCount(ctx context.Context, parentGroupID string) (int, error)
	PurgeParentGroup(ctx context.Context, parentGroupID string) error
}

// Node labels and edge types come from a fixed per-source vocabulary, never
// from payload data, but they still pass through the identifier check since
// Cypher cannot parameterize them.
type Node struct {
	Label         string
	ID            string
	ParentGroupID string
	Props         map[string]any
}

type Edge struct {
	Type          string
	FromLabel     string
	FromID        string
	ToLabel       string
	ToID          string
	ParentGroupID string
}

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

type store struct {
	client *neo4jdb.Client
	log    *logger.Logger
	now    func() time.Time
}

func NewStore(client *neo4jdb.Client, baseLog *logger.Logger) (Store, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	return &store{
		client: client,
		log:    baseLog.With("service", "GraphStore"),
		now:    time.Now,
	}, nil
}

func (s *store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

func (s *store) MergeNode(ctx context.Context, node Node) error {
	if !identPattern.MatchString(node.Label) {
		return fmt.Errorf("graph: invalid node label %q", node.Label)
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	props := make(map[string]any, len(node.Props)+2)
	for k, v := range node.Props {
		props[k] = v
	}
	props["parent_group_id"] = node.ParentGroupID
	props["synced_at"] = s.now().UTC().Format(time.RFC3339Nano)

	query := fmt.Sprintf(`
MERGE (n:%s {id: $id})
SET n += $props
`, node.Label)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"id":    node.ID,
			"props": props,
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("graph: merge node %s/%s: %w", node.Label, node.ID, err)
	}
	return nil
}

func (s *store) MergeEdge(ctx context.Context, edge Edge) error {
	if !identPattern.MatchString(edge.Type) {
		return fmt.Errorf("graph: invalid edge type %q", edge.Type)
	}
	if !identPattern.MatchString(edge.FromLabel) || !identPattern.MatchString(edge.ToLabel) {
		return fmt.Errorf("graph: invalid edge endpoint labels %q -> %q", edge.FromLabel, edge.ToLabel)
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
MATCH (a:%s {id: $from_id})
MATCH (b:%s {id: $to_id})
MERGE (a)-[e:%s]->(b)
SET e.parent_group_id = $parent_group_id, e.synced_at = $synced_at
`, edge.FromLabel, edge.ToLabel, edge.Type)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"from_id":         edge.FromID,
			"to_id":           edge.ToID,
			"parent_group_id": edge.ParentGroupID,
			"synced_at":       s.now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("graph: merge edge %s %s->%s: %w", edge.Type, edge.FromID, edge.ToID, err)
	}
	return nil
}

func (s *store) NodeCount(ctx context.Context, parentGroupID string) (int, error) {
	return s.count(ctx, `MATCH (n {parent_group_id: $pg}) RETURN count(n) AS c`, parentGroupID)
}

func (s *store) EdgeCount(ctx context.Context, parentGroupID string) (int, error) {
	return s.count(ctx, `MATCH ()-[e {parent_group_id: $pg}]->() RETURN count(e) AS c`, parentGroupID)
}

func (s *store) count(ctx context.Context, query, parentGroupID string) (int, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"pg": parentGroupID})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		c, _ := rec.Get("c")
		return c, nil
	})
	if err != nil {
		return 0, fmt.Errorf("graph: count for %s: %w", parentGroupID, err)
	}
	n, ok := out.(int64)
	if !ok {
		return 0, fmt.Errorf("graph: count for %s: unexpected result %T", parentGroupID, out)
	}
	return int(n), nil
}

// PurgeParentGroup removes every node and relationship written for one
// group. Used when an integration is deleted.
func (s *store) PurgeParentGroup(ctx context.Context, parentGroupID string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n {parent_group_id: $pg})
DETACH DELETE n
`, map[string]any{"pg": parentGroupID})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("graph: purge %s: %w", parentGroupID, err)
	}
	return nil
}
