package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/pkg/pathutil"
)

type nodeRepository struct {
	s *Store
}

func (r *nodeRepository) Get(ctx context.Context, path string) (*models.Node, error) {
	var node *models.Node
	err := r.s.do(ctx, func(st *state) error {
		n, ok := st.nodes[path]
		if !ok {
			return nil
		}
		n.Content = nil
		node = &n
		return nil
	})
	return node, err
}

func (r *nodeRepository) Content(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := r.s.do(ctx, func(st *state) error {
		n, ok := st.nodes[path]
		if !ok {
			return kerrors.FileNotFound(path)
		}
		data = slices.Clone(n.Content)
		if data == nil {
			data = []byte{}
		}
		return nil
	})
	return data, err
}

func (r *nodeRepository) Create(ctx context.Context, node *models.Node) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.nodes[node.Path]; ok {
			return kerrors.AlreadyExists(node.Path)
		}
		n := *node
		n.Content = slices.Clone(node.Content)
		st.nodes[n.Path] = n
		return nil
	})
}

func (r *nodeRepository) UpdateContent(ctx context.Context, path string, content []byte, modifiedAt time.Time) error {
	return r.s.do(ctx, func(st *state) error {
		n, ok := st.nodes[path]
		if !ok {
			return kerrors.FileNotFound(path)
		}
		n.Content = slices.Clone(content)
		n.Size = int64(len(content))
		n.ModifiedAt = modifiedAt
		st.nodes[path] = n
		return nil
	})
}

func (r *nodeRepository) UpdateMode(ctx context.Context, path string, mode uint32, modifiedAt time.Time) error {
	return r.s.do(ctx, func(st *state) error {
		n, ok := st.nodes[path]
		if !ok {
			return kerrors.PathNotFound(path)
		}
		n.Mode = mode
		n.ModifiedAt = modifiedAt
		st.nodes[path] = n
		return nil
	})
}

func (r *nodeRepository) Delete(ctx context.Context, path string) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.nodes[path]; !ok {
			return kerrors.PathNotFound(path)
		}
		delete(st.nodes, path)
		return nil
	})
}

func (r *nodeRepository) Rename(ctx context.Context, oldPath, newPath string) (int64, error) {
	var moved int64
	err := r.s.do(ctx, func(st *state) error {
		var paths []string
		for p := range st.nodes {
			if p == oldPath || pathutil.IsDescendant(p, oldPath) {
				paths = append(paths, p)
			}
		}

		for _, p := range paths {
			target := pathutil.Rebase(p, oldPath, newPath)
			if _, taken := st.nodes[target]; taken && !slices.Contains(paths, target) {
				return kerrors.AlreadyExists(newPath)
			}
		}

		relocated := make(map[string]models.Node, len(paths))
		for _, p := range paths {
			n := st.nodes[p]
			n.Path = pathutil.Rebase(p, oldPath, newPath)
			relocated[n.Path] = n
			delete(st.nodes, p)
		}
		for p, n := range relocated {
			st.nodes[p] = n
		}

		moved = int64(len(paths))
		return nil
	})
	return moved, err
}

func (r *nodeRepository) Children(ctx context.Context, dir string) ([]models.Node, error) {
	var nodes []models.Node
	err := r.s.do(ctx, func(st *state) error {
		for p, n := range st.nodes {
			if pathutil.IsChild(p, dir) {
				n.Content = nil
				nodes = append(nodes, n)
			}
		}
		return nil
	})
	slices.SortFunc(nodes, func(a, b models.Node) int {
		return cmp.Compare(a.Ino, b.Ino)
	})
	return nodes, err
}

func (r *nodeRepository) Subtree(ctx context.Context, dir string) ([]models.Node, error) {
	var nodes []models.Node
	err := r.s.do(ctx, func(st *state) error {
		for p, n := range st.nodes {
			if pathutil.IsDescendant(p, dir) {
				n.Content = slices.Clone(n.Content)
				nodes = append(nodes, n)
			}
		}
		return nil
	})
	slices.SortFunc(nodes, func(a, b models.Node) int {
		return cmp.Or(
			cmp.Compare(len(a.Path), len(b.Path)),
			cmp.Compare(a.Path, b.Path),
		)
	})
	return nodes, err
}

func (r *nodeRepository) HasDescendants(ctx context.Context, dir string) (bool, error) {
	var found bool
	err := r.s.do(ctx, func(st *state) error {
		for p := range st.nodes {
			if pathutil.IsDescendant(p, dir) {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}
