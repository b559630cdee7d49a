// Package identity resolves Cognito users to the organization they belong to.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"golang.org/x/sync/errgroup"

	"github.com/lockplane/ownershift/internal/planner"
)

// pageSize is the maximum ListUsers page size Cognito accepts.
const pageSize = 60

// DirectoryAPI is the subset of the Cognito client the resolver uses.
type DirectoryAPI interface {
	ListUsers(ctx context.Context, params *cip.ListUsersInput, optFns ...func(*cip.Options)) (*cip.ListUsersOutput, error)
	AdminListGroupsForUser(ctx context.Context, params *cip.AdminListGroupsForUserInput, optFns ...func(*cip.Options)) (*cip.AdminListGroupsForUserOutput, error)
}

// Options configures how users map to identities.
type Options struct {
	UserPoolID string
	// GroupPrefix marks organization groups; the matching group name is the
	// organization id.
	GroupPrefix string
	// StableIDAttribute is the user attribute holding the stable id.
	StableIDAttribute string
	Logger            *slog.Logger
}

// Resolver lists directory users with their organization.
type Resolver struct {
	api  DirectoryAPI
	opts Options
}

// NewResolver creates a resolver. Empty options default to the "CLIENT_"
// group prefix and the "sub" attribute.
func NewResolver(api DirectoryAPI, opts Options) *Resolver {
	if opts.GroupPrefix == "" {
		opts.GroupPrefix = "CLIENT_"
	}
	if opts.StableIDAttribute == "" {
		opts.StableIDAttribute = "sub"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Resolver{api: api, opts: opts}
}

// ListIdentities pages through every user in the pool. Pages are fetched in
// order; group membership within a page is resolved concurrently. Users with
// no organization group or no stable id are left out. Any error aborts the
// whole listing.
func (r *Resolver) ListIdentities(ctx context.Context) ([]planner.Identity, error) {
	var identities []planner.Identity
	var token *string
	pages := 0
	for {
		out, err := r.api.ListUsers(ctx, &cip.ListUsersInput{
			UserPoolId:      aws.String(r.opts.UserPoolID),
			Limit:           aws.Int32(pageSize),
			PaginationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list users in %s: %w", r.opts.UserPoolID, err)
		}
		pages++

		resolved, err := r.resolvePage(ctx, out.Users)
		if err != nil {
			return nil, err
		}
		for _, identity := range resolved {
			if identity != nil {
				identities = append(identities, *identity)
			}
		}

		if aws.ToString(out.PaginationToken) == "" {
			break
		}
		token = out.PaginationToken
	}
	r.opts.Logger.Debug("resolved identities", "pages", pages, "identities", len(identities))
	return identities, nil
}

func (r *Resolver) resolvePage(ctx context.Context, users []types.UserType) ([]*planner.Identity, error) {
	resolved := make([]*planner.Identity, len(users))
	g, gctx := errgroup.WithContext(ctx)
	for i, user := range users {
		g.Go(func() error {
			identity, err := r.resolveUser(gctx, user)
			if err != nil {
				return err
			}
			resolved[i] = identity
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (r *Resolver) resolveUser(ctx context.Context, user types.UserType) (*planner.Identity, error) {
	username := aws.ToString(user.Username)
	org, err := r.organizationOf(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list groups for %s: %w", username, err)
	}
	attrs := attributes(user.Attributes)
	stableID := attrs[r.opts.StableIDAttribute]
	if org == "" || stableID == "" {
		r.opts.Logger.Debug("skipping user", "username", username, "organization", org, "has_stable_id", stableID != "")
		return nil, nil
	}
	return &planner.Identity{
		StableID:       stableID,
		DisplayName:    displayName(username, attrs),
		OrganizationID: org,
	}, nil
}

func (r *Resolver) organizationOf(ctx context.Context, username string) (string, error) {
	var token *string
	for {
		out, err := r.api.AdminListGroupsForUser(ctx, &cip.AdminListGroupsForUserInput{
			UserPoolId: aws.String(r.opts.UserPoolID),
			Username:   aws.String(username),
			NextToken:  token,
		})
		if err != nil {
			return "", err
		}
		for _, group := range out.Groups {
			if name := aws.ToString(group.GroupName); strings.HasPrefix(name, r.opts.GroupPrefix) {
				return name, nil
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return "", nil
		}
		token = out.NextToken
	}
}

func attributes(attrs []types.AttributeType) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		out[aws.ToString(attr.Name)] = aws.ToString(attr.Value)
	}
	return out
}

func displayName(username string, attrs map[string]string) string {
	for _, name := range []string{"name", "email"} {
		if v := attrs[name]; v != "" {
			return v
		}
	}
	return username
}
