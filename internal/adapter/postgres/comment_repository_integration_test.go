package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briankwest/imglink/internal/domain"
)

func createTestComment(t *testing.T, repo *CommentRepo, imageID, authorID int64, parentID *int64) *domain.Comment {
	t.Helper()
	c := &domain.Comment{
		Content:  "nice shot",
		ImageID:  imageID,
		AuthorID: authorID,
		ParentID: parentID,
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func TestCommentCreate_FillsIDAndTimestamps(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	userID := createTestUser(t, pool, "alice")
	imageID := createTestImage(t, pool, userID)

	c := createTestComment(t, repo, imageID, userID, nil)

	assert.Positive(t, c.ID)
	assert.False(t, c.CreatedAt.IsZero())
	assert.False(t, c.UpdatedAt.IsZero())
}

func TestCommentCreate_Reply(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	ctx := context.Background()
	userID := createTestUser(t, pool, "alice")
	imageID := createTestImage(t, pool, userID)

	parent := createTestComment(t, repo, imageID, userID, nil)
	reply := createTestComment(t, repo, imageID, userID, &parent.ID)

	got, err := repo.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, parent.ID, *got.ParentID)
}

func TestCommentCreate_MissingParent(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	userID := createTestUser(t, pool, "alice")
	imageID := createTestImage(t, pool, userID)

	missing := int64(9999)
	err := repo.Create(context.Background(), &domain.Comment{
		Content:  "orphan",
		ImageID:  imageID,
		AuthorID: userID,
		ParentID: &missing,
	})
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestCommentCreate_ParentOnAnotherImage(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	userID := createTestUser(t, pool, "alice")
	firstImage := createTestImage(t, pool, userID)
	secondImage := createTestImage(t, pool, userID)

	parent := createTestComment(t, repo, firstImage, userID, nil)

	// A reply must live on the same image as its parent.
	err := repo.Create(context.Background(), &domain.Comment{
		Content:  "cross-image reply",
		ImageID:  secondImage,
		AuthorID: userID,
		ParentID: &parent.ID,
	})
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestCommentUpdate(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	ctx := context.Background()
	userID := createTestUser(t, pool, "alice")
	imageID := createTestImage(t, pool, userID)
	c := createTestComment(t, repo, imageID, userID, nil)

	updated, err := repo.Update(ctx, userID, c.ID, "better shot")
	require.NoError(t, err)
	assert.Equal(t, c.ID, updated.ID)
	assert.Equal(t, "better shot", updated.Content)
	assert.Equal(t, imageID, updated.ImageID)
}

func TestCommentUpdate_OnlyAuthorMayEdit(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	ctx := context.Background()
	alice := createTestUser(t, pool, "alice")
	bob := createTestUser(t, pool, "bob")
	imageID := createTestImage(t, pool, alice)
	c := createTestComment(t, repo, imageID, alice, nil)

	_, err := repo.Update(ctx, bob, c.ID, "hijacked")
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "nice shot", got.Content)
}

func TestCommentUpdate_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	userID := createTestUser(t, pool, "alice")

	_, err := repo.Update(context.Background(), userID, 9999, "ghost")
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestCommentDelete_ReturnsImageID(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	ctx := context.Background()
	userID := createTestUser(t, pool, "alice")
	imageID := createTestImage(t, pool, userID)
	c := createTestComment(t, repo, imageID, userID, nil)

	gotImageID, err := repo.Delete(ctx, userID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, imageID, gotImageID)

	_, err = repo.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestCommentDelete_OnlyAuthorMayDelete(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	ctx := context.Background()
	alice := createTestUser(t, pool, "alice")
	bob := createTestUser(t, pool, "bob")
	imageID := createTestImage(t, pool, alice)
	c := createTestComment(t, repo, imageID, alice, nil)

	_, err := repo.Delete(ctx, bob, c.ID)
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)

	_, err = repo.GetByID(ctx, c.ID)
	assert.NoError(t, err)
}

func TestCommentImageOwner(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)
	ctx := context.Background()
	userID := createTestUser(t, pool, "alice")
	imageID := createTestImage(t, pool, userID)

	owner, err := repo.ImageOwner(ctx, imageID)
	require.NoError(t, err)
	assert.Equal(t, userID, owner)
}

func TestCommentImageOwner_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewCommentRepo(pool)

	_, err := repo.ImageOwner(context.Background(), 9999)
	assert.ErrorIs(t, err, domain.ErrImageNotFound)
}
