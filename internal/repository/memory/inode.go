package memory

import (
	"context"

	"github.com/S1riyS/tnfs/internal/models"
)

type inodeRepository struct {
	s *Store
}

func (r *inodeRepository) Allocate(ctx context.Context) (int64, error) {
	var ino int64
	err := r.s.do(ctx, func(st *state) error {
		ino = st.nextIno
		st.nextIno++
		st.inodes[ino] = models.Inode{Ino: ino, RefCount: 1}
		return nil
	})
	return ino, err
}

func (r *inodeRepository) Get(ctx context.Context, ino int64) (*models.Inode, error) {
	var inode *models.Inode
	err := r.s.do(ctx, func(st *state) error {
		if in, ok := st.inodes[ino]; ok {
			inode = &in
		}
		return nil
	})
	return inode, err
}

func (r *inodeRepository) Release(ctx context.Context, ino int64) error {
	return r.s.do(ctx, func(st *state) error {
		in, ok := st.inodes[ino]
		if !ok || in.RefCount == 0 {
			return nil
		}
		in.RefCount--
		st.inodes[ino] = in
		return nil
	})
}
