package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testHash  = "0123456789abcdef0123456789abcdef01234567"
	otherHash = "fedcba9876543210fedcba9876543210fedcba98"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func loadCommit(t *testing.T, dir string) (Commit, bool) {
	t.Helper()
	vars, err := Git{}.LoadVariables(context.Background(), &ProjectInfo{Name: "app", Dir: dir})
	require.NoError(t, err)

	commit, ok := vars["commit"].(Commit)
	return commit, ok
}

func TestGitPlugin(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), testHash+"\n")

	project := &ProjectInfo{Name: "app", Dir: root}
	vars, err := Git{}.LoadVariables(ctx, project)
	require.NoError(t, err)

	commit, ok := vars["commit"].(Commit)
	require.True(t, ok)
	require.Equal(t, "0123456", commit.Short)
	require.Equal(t, testHash, commit.Long)
	require.Equal(t, "0123456", commit.String())

	project.Variables = vars
	metadata := &Metadata{Name: "app"}
	require.NoError(t, Git{}.ProcessArtifactMetadata(ctx, metadata, project))
	require.Equal(t, testHash, metadata.Commit)
}

func TestGitPluginBranches(t *testing.T) {
	t.Run("loose ref from nested directory", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")
		writeFile(t, filepath.Join(root, ".git", "refs", "heads", "main"), testHash+"\n")
		nested := filepath.Join(root, "packages", "app")
		require.NoError(t, os.MkdirAll(nested, 0o755))

		commit, ok := loadCommit(t, nested)
		require.True(t, ok)
		require.Equal(t, testHash, commit.Long)
	})

	t.Run("packed ref", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")
		writeFile(t, filepath.Join(root, ".git", "packed-refs"), "# pack-refs with: peeled fully-peeled sorted\n"+
			otherHash+" refs/heads/other\n"+
			testHash+" refs/heads/main\n")

		commit, ok := loadCommit(t, root)
		require.True(t, ok)
		require.Equal(t, testHash, commit.Long)
	})

	t.Run("no commits yet", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")
		require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "refs", "heads"), 0o755))

		_, ok := loadCommit(t, root)
		require.False(t, ok)
	})
}

func TestGitPluginWorktree(t *testing.T) {
	root := t.TempDir()
	mainDir := filepath.Join(root, "main")
	gitDir := filepath.Join(mainDir, ".git")
	writeFile(t, filepath.Join(gitDir, "HEAD"), "ref: refs/heads/main\n")
	writeFile(t, filepath.Join(gitDir, "refs", "heads", "main"), otherHash+"\n")
	writeFile(t, filepath.Join(gitDir, "packed-refs"), testHash+" refs/heads/feature\n")

	worktreeGitDir := filepath.Join(gitDir, "worktrees", "wt")
	worktree := filepath.Join(root, "wt")
	writeFile(t, filepath.Join(worktreeGitDir, "HEAD"), "ref: refs/heads/feature\n")
	writeFile(t, filepath.Join(worktreeGitDir, "commondir"), "../..\n")
	writeFile(t, filepath.Join(worktreeGitDir, "gitdir"), filepath.Join(worktree, ".git")+"\n")
	writeFile(t, filepath.Join(worktree, ".git"), "gitdir: "+worktreeGitDir+"\n")

	commit, ok := loadCommit(t, worktree)
	require.True(t, ok)
	require.Equal(t, testHash, commit.Long)

	commit, ok = loadCommit(t, mainDir)
	require.True(t, ok)
	require.Equal(t, otherHash, commit.Long)
}

func TestGitPluginWithoutRepository(t *testing.T) {
	ctx := context.Background()
	project := &ProjectInfo{Name: "app", Dir: t.TempDir(), Variables: map[string]interface{}{}}

	vars, err := Git{}.LoadVariables(ctx, project)
	require.NoError(t, err)
	require.NotContains(t, vars, "commit")

	metadata := &Metadata{Name: "app"}
	require.NoError(t, Git{}.ProcessArtifactMetadata(ctx, metadata, project))
	require.Empty(t, metadata.Commit)
}
