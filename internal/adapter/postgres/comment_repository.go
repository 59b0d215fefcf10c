package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briankwest/imglink/internal/domain"
)

// commentColumns must match the Scan order in scanComment.
const commentColumns = `id, content, image_id, user_id, parent_id, created_at, updated_at`

// CommentRepo persists image comments. The REST boundary commits through it
// before publishing the matching event to the image room.
type CommentRepo struct {
	pool *pgxpool.Pool
}

func NewCommentRepo(pool *pgxpool.Pool) *CommentRepo {
	return &CommentRepo{pool: pool}
}

// Create stores a comment and fills in its ID and timestamps. A parent ID
// referencing another image's comment is rejected.
func (r *CommentRepo) Create(ctx context.Context, c *domain.Comment) error {
	if c.ParentID != nil {
		parent, err := r.GetByID(ctx, *c.ParentID)
		if err != nil {
			return err
		}
		if parent.ImageID != c.ImageID {
			return domain.ErrCommentNotFound
		}
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO comments (content, image_id, user_id, parent_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		c.Content, c.ImageID, c.AuthorID, c.ParentID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// Update rewrites a comment's content. The author ID scopes the update so
// users can only edit their own comments.
func (r *CommentRepo) Update(ctx context.Context, authorID, commentID int64, content string) (*domain.Comment, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE comments SET content = $1, updated_at = now()
		 WHERE id = $2 AND user_id = $3
		 RETURNING `+commentColumns,
		content, commentID, authorID)

	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	return c, nil
}

// Delete removes a comment and returns the image it belonged to, so the
// caller can publish the deletion to the image's room.
func (r *CommentRepo) Delete(ctx context.Context, authorID, commentID int64) (int64, error) {
	var imageID int64
	err := r.pool.QueryRow(ctx,
		`DELETE FROM comments WHERE id = $1 AND user_id = $2 RETURNING image_id`,
		commentID, authorID).Scan(&imageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrCommentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete comment: %w", err)
	}
	return imageID, nil
}

func (r *CommentRepo) GetByID(ctx context.Context, commentID int64) (*domain.Comment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1`, commentID)

	c, err := scanComment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return c, nil
}

// ImageOwner returns the owning user of an image, for notifying them about
// new comments.
func (r *CommentRepo) ImageOwner(ctx context.Context, imageID int64) (int64, error) {
	var ownerID int64
	err := r.pool.QueryRow(ctx,
		`SELECT user_id FROM images WHERE id = $1`, imageID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrImageNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get image owner: %w", err)
	}
	return ownerID, nil
}

func scanComment(row pgx.Row) (*domain.Comment, error) {
	var c domain.Comment
	err := row.Scan(&c.ID, &c.Content, &c.ImageID, &c.AuthorID, &c.ParentID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
