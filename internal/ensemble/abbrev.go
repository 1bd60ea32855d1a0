package ensemble

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ahrav/go-taxa/internal/domain"
)

// Abbreviation errors.
var (
	ErrNoNodes        = errors.New("no nodes to abbreviate")
	ErrShortCollision = errors.New("short id collides with an existing node id")
)

// IDMap carries the short↔long id mapping for one abbreviation run.
// Short ids keep prompts small and stop models from pattern-matching on
// database id structure; they are never persisted.
type IDMap struct {
	toShort map[string]string
	toLong  map[string]string
}

// Short returns the short id for a long id.
func (m *IDMap) Short(longID string) (string, bool) {
	s, ok := m.toShort[longID]
	return s, ok
}

// Long returns the long id for a short id.
func (m *IDMap) Long(shortID string) (string, bool) {
	l, ok := m.toLong[shortID]
	return l, ok
}

// AbbreviateNodes rewrites node and parent ids to compact counter-based
// short ids ("n1", "n2", ...), in input order so the mapping is
// deterministic within a run. A generated short id that collides with a
// real node id is skipped; exhausting the counter space is impossible since
// ids only grow. The empty parent of the root is left untouched.
func AbbreviateNodes(nodes []domain.Node) ([]domain.Node, *IDMap, error) {
	if len(nodes) == 0 {
		return nil, nil, ErrNoNodes
	}

	existing := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, nil, fmt.Errorf("node with empty id: %+v", n)
		}
		existing[n.ID] = struct{}{}
	}

	m := &IDMap{
		toShort: make(map[string]string, len(nodes)),
		toLong:  make(map[string]string, len(nodes)),
	}
	counter := 0
	allocate := func(longID string) string {
		if s, ok := m.toShort[longID]; ok {
			return s
		}
		for {
			counter++
			short := fmt.Sprintf("n%d", counter)
			if _, taken := existing[short]; taken {
				continue
			}
			m.toShort[longID] = short
			m.toLong[short] = longID
			return short
		}
	}

	out := make([]domain.Node, len(nodes))
	for i, n := range nodes {
		c := n
		c.ID = allocate(n.ID)
		if n.ParentID != "" {
			c.ParentID = allocate(n.ParentID)
		}
		out[i] = c
	}
	return out, m, nil
}

// RestoreNodes maps abbreviated node and parent ids back to their long
// forms. Short ids absent from the map name newly proposed nodes (bootstrap
// and examination let the model mint ids); they are assigned fresh UUIDs,
// consistently across id and parent references. A fresh id colliding with a
// known node id is fatal: it signals an allocation defect, not bad luck.
func RestoreNodes(nodes []domain.Node, m *IDMap) ([]domain.Node, error) {
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}

	fresh := make(map[string]string)
	restore := func(shortID string) (string, error) {
		if long, ok := m.Long(shortID); ok {
			return long, nil
		}
		if long, ok := fresh[shortID]; ok {
			return long, nil
		}
		long := uuid.NewString()
		if _, taken := m.toShort[long]; taken {
			return "", fmt.Errorf("%w: %s", ErrShortCollision, long)
		}
		fresh[shortID] = long
		return long, nil
	}

	out := make([]domain.Node, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node with empty id: %+v", n)
		}
		c := n
		id, err := restore(n.ID)
		if err != nil {
			return nil, err
		}
		c.ID = id
		if n.ParentID != "" {
			parent, err := restore(n.ParentID)
			if err != nil {
				return nil, err
			}
			c.ParentID = parent
		}
		out[i] = c
	}
	return out, nil
}

// RestoreIDs maps a list of short ids back to long ids, dropping unknowns.
func (m *IDMap) RestoreIDs(shortIDs []string) (restored []string, unknown []string) {
	for _, s := range shortIDs {
		if long, ok := m.Long(s); ok {
			restored = append(restored, long)
		} else {
			unknown = append(unknown, s)
		}
	}
	return restored, unknown
}
