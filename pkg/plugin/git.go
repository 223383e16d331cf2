package plugin

import (
	"context"
	"errors"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rotisserie/eris"

	"github.com/ngld/henge/pkg/console"
)

// GitName is the identifier of the built-in variables loader
const GitName = "git"

// Commit is exposed as the `commit` variable. Rendering it directly yields the short hash.
type Commit struct {
	Short string
	Long  string
}

func (c Commit) String() string {
	return c.Short
}

// NewCommit splits a full hash into its short and long form
func NewCommit(hash string) Commit {
	short := hash
	if len(short) > 7 {
		short = short[:7]
	}
	return Commit{Short: short, Long: hash}
}

// Git provides the commit of the project's repository
type Git struct{}

func init() {
	Register(GitName, func(Options) (Plugin, error) {
		return Git{}, nil
	})
}

// Name implements Plugin
func (Git) Name() string {
	return GitName
}

// LoadVariables implements VariableLoader. Projects outside of a repository or in a repository
// without commits don't get a commit.
func (Git) LoadVariables(ctx context.Context, project *ProjectInfo) (map[string]interface{}, error) {
	repo, err := git.PlainOpenWithOptions(project.Dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			console.Log(ctx).Debug().Msgf("%s is not inside a git repository", project.Dir)
			return map[string]interface{}{}, nil
		}
		return nil, eris.Wrapf(err, "failed to open the repository of %s", project.Dir)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			console.Log(ctx).Debug().Msgf("The repository of %s has no commits yet", project.Dir)
			return map[string]interface{}{}, nil
		}
		return nil, eris.Wrapf(err, "failed to resolve HEAD of %s", project.Dir)
	}

	return map[string]interface{}{
		"commit": NewCommit(head.Hash().String()),
	}, nil
}

// ProcessArtifactMetadata implements MetadataProcessor
func (Git) ProcessArtifactMetadata(ctx context.Context, metadata *Metadata, project *ProjectInfo) error {
	if commit, ok := project.Variables["commit"].(Commit); ok {
		metadata.Commit = commit.Long
	}
	return nil
}
