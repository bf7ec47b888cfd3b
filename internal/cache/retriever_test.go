package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnippetRetriever_MatchesKeywords(t *testing.T) {
	c := newTestMemoryCache(t)
	r := NewSnippetRetriever(c, 3)
	ctx := context.Background()

	require.NoError(t, r.StoreSnippets(ctx, "alice", []string{
		"Deployments roll out in waves of ten percent.",
		"The billing cron runs at midnight UTC.",
		"Rollback requires an approval from the on-call.",
	}))

	got, err := r.Retrieve(ctx, "alice", "how does rollback work")
	require.NoError(t, err)
	assert.Equal(t, []string{"Rollback requires an approval from the on-call."}, got)
}

func TestSnippetRetriever_NoSnippetsIsNotAnError(t *testing.T) {
	c := newTestMemoryCache(t)
	r := NewSnippetRetriever(c, 3)

	got, err := r.Retrieve(context.Background(), "nobody", "anything at all")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnippetRetriever_LimitCapsResults(t *testing.T) {
	c := newTestMemoryCache(t)
	r := NewSnippetRetriever(c, 2)
	ctx := context.Background()

	require.NoError(t, r.StoreSnippets(ctx, "alice", []string{
		"database replica one",
		"database replica two",
		"database replica three",
	}))

	got, err := r.Retrieve(ctx, "alice", "database status")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSnippetRetriever_ShortWordsIgnored(t *testing.T) {
	c := newTestMemoryCache(t)
	r := NewSnippetRetriever(c, 3)
	ctx := context.Background()

	require.NoError(t, r.StoreSnippets(ctx, "alice", []string{"an ox is strong"}))

	// Words under three characters never match.
	got, err := r.Retrieve(ctx, "alice", "is an ox")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnippetRetriever_StoreReplacesSet(t *testing.T) {
	c := newTestMemoryCache(t)
	r := NewSnippetRetriever(c, 3)
	ctx := context.Background()

	require.NoError(t, r.StoreSnippets(ctx, "alice", []string{"first generation snippet"}))
	require.NoError(t, r.StoreSnippets(ctx, "alice", []string{"second generation snippet"}))

	got, err := r.Retrieve(ctx, "alice", "generation")
	require.NoError(t, err)
	assert.Equal(t, []string{"second generation snippet"}, got)
}

func TestSnippetRetriever_StoreDocument(t *testing.T) {
	c := newTestMemoryCache(t)
	r := NewSnippetRetriever(c, 3)
	ctx := context.Background()

	content := "# Runbook\n\nDeployments roll out in waves.\n\nRollback needs on-call approval.\n"
	storedName, err := r.StoreDocument(ctx, "alice", "runbook.md", content)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(storedName, ".md"))

	got, err := r.Retrieve(ctx, "alice", "how do I rollback")
	require.NoError(t, err)
	assert.Equal(t, []string{"Rollback needs on-call approval."}, got)

	files, err := r.Files(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{storedName}, files)
}

func TestSnippetRetriever_StoreDocumentRejectsOtherTypes(t *testing.T) {
	c := newTestMemoryCache(t)
	r := NewSnippetRetriever(c, 3)

	for _, name := range []string{"slides.pdf", "data.csv", "noext"} {
		_, err := r.StoreDocument(context.Background(), "alice", name, "content")
		require.ErrorIs(t, err, ErrUnsupportedFile, "file %s", name)
	}
}

func TestSnippetRetriever_StoreDocumentReplacesPrevious(t *testing.T) {
	c := newTestMemoryCache(t)
	r := NewSnippetRetriever(c, 3)
	ctx := context.Background()

	_, err := r.StoreDocument(ctx, "alice", "old.txt", "legacy process notes")
	require.NoError(t, err)
	newName, err := r.StoreDocument(ctx, "alice", "new.txt", "current process notes")
	require.NoError(t, err)

	got, err := r.Retrieve(ctx, "alice", "process")
	require.NoError(t, err)
	assert.Equal(t, []string{"current process notes"}, got)

	files, err := r.Files(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{newName}, files)
}

func TestSnippetRetriever_FilesEmptyWithoutUpload(t *testing.T) {
	c := newTestMemoryCache(t)
	r := NewSnippetRetriever(c, 3)

	files, err := r.Files(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestSplitSnippets(t *testing.T) {
	snippets := SplitSnippets("first block\n\n\n  second block  \n\nthird\r\n\r\nfourth")
	assert.Equal(t, []string{"first block", "second block", "third", "fourth"}, snippets)

	assert.Nil(t, SplitSnippets(""))
	assert.Nil(t, SplitSnippets("\n\n  \n\n"))
}
