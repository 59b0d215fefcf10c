package session

import "github.com/briankwest/imglink/internal/domain"

// MergeComment inserts an incoming comment into a threaded tree. Comments
// are matched by ID: if the tree already holds the incoming ID the event is
// a duplicate of local optimistic state and is discarded. Replies are placed
// under their parent; a reply whose parent is not present locally is kept at
// the top level rather than dropped.
func MergeComment(tree []domain.Comment, incoming domain.Comment) []domain.Comment {
	if containsComment(tree, incoming.ID) {
		return tree
	}
	if incoming.ParentID != nil {
		if attachReply(tree, *incoming.ParentID, incoming) {
			return tree
		}
	}
	return append(tree, incoming)
}

// UpdateComment replaces the comment with the incoming ID in place,
// preserving its position and replies. A miss leaves the tree unchanged.
func UpdateComment(tree []domain.Comment, incoming domain.Comment) {
	for i := range tree {
		if tree[i].ID == incoming.ID {
			incoming.Replies = tree[i].Replies
			tree[i] = incoming
			return
		}
		UpdateComment(tree[i].Replies, incoming)
	}
}

// RemoveComment deletes the comment with the given ID, together with its
// replies, wherever it sits in the tree.
func RemoveComment(tree []domain.Comment, commentID int64) []domain.Comment {
	for i := range tree {
		if tree[i].ID == commentID {
			return append(tree[:i], tree[i+1:]...)
		}
		tree[i].Replies = RemoveComment(tree[i].Replies, commentID)
	}
	return tree
}

func containsComment(tree []domain.Comment, id int64) bool {
	for i := range tree {
		if tree[i].ID == id {
			return true
		}
		if containsComment(tree[i].Replies, id) {
			return true
		}
	}
	return false
}

func attachReply(tree []domain.Comment, parentID int64, reply domain.Comment) bool {
	for i := range tree {
		if tree[i].ID == parentID {
			tree[i].Replies = append(tree[i].Replies, reply)
			return true
		}
		if attachReply(tree[i].Replies, parentID, reply) {
			return true
		}
	}
	return false
}
