// Package repository provides a typed GORM repository shared by the
// entity-specific repositories.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Query narrows a statement.
type Query func(*gorm.DB) *gorm.DB

func Where(query any, args ...any) Query {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}

func OrderBy(value string) Query {
	return func(db *gorm.DB) *gorm.DB { return db.Order(value) }
}

func Limit(n int) Query {
	return func(db *gorm.DB) *gorm.DB { return db.Limit(n) }
}

func Offset(n int) Query {
	return func(db *gorm.DB) *gorm.DB { return db.Offset(n) }
}

func Preload(association string, args ...any) Query {
	return func(db *gorm.DB) *gorm.DB { return db.Preload(association, args...) }
}

// Repository is a typed data access layer over one entity schema.
type Repository[E any] struct {
	db *gorm.DB
}

func New[E any](db *gorm.DB) *Repository[E] {
	return &Repository[E]{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository[E]) WithTx(tx *gorm.DB) *Repository[E] {
	return &Repository[E]{db: tx}
}

// DB returns a session scoped to the entity's table.
func (r *Repository[E]) DB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(new(E))
}

// Transaction runs fn inside a transaction; use WithTx to bind repositories to tx.
func (r *Repository[E]) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *Repository[E]) Create(ctx context.Context, entity *E) error {
	return r.db.WithContext(ctx).Create(entity).Error
}

func (r *Repository[E]) Save(ctx context.Context, entity *E) error {
	return r.db.WithContext(ctx).Save(entity).Error
}

// FindOne returns the first match. It returns gorm.ErrRecordNotFound when nothing matches.
func (r *Repository[E]) FindOne(ctx context.Context, queries ...Query) (*E, error) {
	var entity E
	if err := apply(r.db.WithContext(ctx), queries).First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *Repository[E]) FindAll(ctx context.Context, queries ...Query) ([]E, error) {
	var out []E
	if err := apply(r.db.WithContext(ctx), queries).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository[E]) Count(ctx context.Context, queries ...Query) (int64, error) {
	var n int64
	err := apply(r.DB(ctx), queries).Count(&n).Error
	return n, err
}

func (r *Repository[E]) Exists(ctx context.Context, queries ...Query) (bool, error) {
	n, err := r.Count(ctx, queries...)
	return n > 0, err
}

// UpdateFields writes fields on every matching row and returns the number of rows matched.
func (r *Repository[E]) UpdateFields(ctx context.Context, fields map[string]any, queries ...Query) (int64, error) {
	if len(queries) == 0 {
		return 0, errors.New("repository: refusing to update without a condition")
	}
	res := apply(r.DB(ctx), queries).Updates(fields)
	return res.RowsAffected, res.Error
}

// DeleteWhere removes every matching row.
func (r *Repository[E]) DeleteWhere(ctx context.Context, queries ...Query) (int64, error) {
	if len(queries) == 0 {
		return 0, errors.New("repository: refusing to delete without a condition")
	}
	res := apply(r.db.WithContext(ctx), queries).Delete(new(E))
	return res.RowsAffected, res.Error
}

// IsNotFound reports whether err means no row matched.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func apply(db *gorm.DB, queries []Query) *gorm.DB {
	for _, q := range queries {
		db = q(db)
	}
	return db
}
