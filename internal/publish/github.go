// Package publish creates a GitHub release for a packaged firmware version
// and uploads its assets.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"fwrelease/internal/console"
	"fwrelease/internal/release"
	"fwrelease/internal/security"
)

// Publisher talks to one GitHub repository.
type Publisher struct {
	Client  *github.Client
	Owner   string
	Repo    string
	Logger  *slog.Logger
	Console *console.Console
}

// Result describes what Publish did.
type Result struct {
	Tag      string
	URL      string
	Created  bool
	Uploaded []string
	Skipped  []string
}

// createGitHubClient creates an authenticated GitHub client
func createGitHubClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// NewPublisher validates repo ("owner/name") and token and returns a
// publisher using them.
func NewPublisher(ctx context.Context, repo, token string, logger *slog.Logger, out *console.Console) (*Publisher, error) {
	if err := security.ValidateRepo(repo); err != nil {
		return nil, err
	}
	if err := security.ValidateToken(token); err != nil {
		return nil, fmt.Errorf("invalid GitHub token: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = console.Discard()
	}

	owner, name, _ := strings.Cut(repo, "/")
	return &Publisher{
		Client:  createGitHubClient(ctx, token),
		Owner:   owner,
		Repo:    name,
		Logger:  logger,
		Console: out,
	}, nil
}

// Tag returns the release tag for version.
func Tag(version string) string {
	return release.DirName(version)
}

// Publish finds or creates the release tagged v<version> with notes as its
// body, then uploads each asset whose name is not already attached.
func (p *Publisher) Publish(ctx context.Context, version, notes string, assets []string) (*Result, error) {
	tag := Tag(version)
	result := &Result{Tag: tag}

	rel, err := p.findRelease(ctx, tag)
	if err != nil {
		return nil, err
	}

	if rel == nil {
		rel, _, err = p.Client.Repositories.CreateRelease(ctx, p.Owner, p.Repo, &github.RepositoryRelease{
			TagName: github.String(tag),
			Name:    github.String(tag),
			Body:    github.String(notes),
		})
		p.Console.Check(fmt.Sprintf("Creating GitHub release %s...", tag), err == nil)
		if err != nil {
			return nil, fmt.Errorf("creating release: %w", err)
		}
		result.Created = true
		p.Logger.Info("github release created", "repo", p.Owner+"/"+p.Repo, "tag", tag)
	} else {
		p.Console.Success("Release %s already exists on GitHub...", tag)
	}
	result.URL = rel.GetHTMLURL()

	existing, err := p.assetNames(ctx, rel.GetID())
	if err != nil {
		return result, err
	}

	for _, path := range assets {
		name := filepath.Base(path)
		if existing[name] {
			p.Console.CheckWarn(fmt.Sprintf("Asset %s already attached, skipping", name))
			result.Skipped = append(result.Skipped, name)
			continue
		}
		if err := p.upload(ctx, rel.GetID(), path); err != nil {
			return result, err
		}
		result.Uploaded = append(result.Uploaded, name)
	}

	return result, nil
}

func (p *Publisher) findRelease(ctx context.Context, tag string) (*github.RepositoryRelease, error) {
	rel, _, err := p.Client.Repositories.GetReleaseByTag(ctx, p.Owner, p.Repo, tag)
	if err == nil {
		return rel, nil
	}

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	return nil, fmt.Errorf("looking up release %s: %w", tag, err)
}

func (p *Publisher) assetNames(ctx context.Context, releaseID int64) (map[string]bool, error) {
	names := make(map[string]bool)
	opts := &github.ListOptions{PerPage: 100}
	for {
		assets, resp, err := p.Client.Repositories.ListReleaseAssets(ctx, p.Owner, p.Repo, releaseID, opts)
		if err != nil {
			return nil, fmt.Errorf("listing release assets: %w", err)
		}
		for _, a := range assets {
			names[a.GetName()] = true
		}
		if resp == nil || resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

func (p *Publisher) upload(ctx context.Context, releaseID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening asset: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	_, _, err = p.Client.Repositories.UploadReleaseAsset(ctx, p.Owner, p.Repo, releaseID, &github.UploadOptions{Name: name}, f)
	p.Console.Check(fmt.Sprintf("Uploading %s...", name), err == nil)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	p.Logger.Info("release asset uploaded", "asset", name, "release_id", releaseID)
	return nil
}
