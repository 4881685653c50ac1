package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/forumhub/internal/domain/group"
	"github.com/geocoder89/forumhub/internal/jobs"
	"github.com/geocoder89/forumhub/internal/observability"
)

type GroupsRepo struct {
	observer
	pool *pgxpool.Pool
	jobs *JobsRepo
}

func NewGroupsRepo(pool *pgxpool.Pool, prom *observability.Prom, jobsRepo *JobsRepo) *GroupsRepo {
	return &GroupsRepo{observer: observer{prom: prom}, pool: pool, jobs: jobsRepo}
}

const groupSelect = `
	SELECT g.id, g.public_id, g.name, g.description, g.owner_id,
	       (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id),
	       g.created_at, g.updated_at
	FROM groups g`

func scanGroup(row pgx.Row, g *group.Group) error {
	return row.Scan(
		&g.ID, &g.PublicID, &g.Name, &g.Description, &g.OwnerID,
		&g.MemberCount,
		&g.CreatedAt, &g.UpdatedAt,
	)
}

func (r *GroupsRepo) queryGroups(ctx context.Context, op, sql string, args ...any) ([]group.Group, error) {
	out := make([]group.Group, 0)

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var g group.Group
			if err := scanGroup(rows, &g); err != nil {
				return err
			}
			out = append(out, g)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts the group with its owner as first member, one pending
// invitation per invitee and the matching notice jobs, all or nothing.
func (r *GroupsRepo) Create(ctx context.Context, req group.CreateRequest) (group.Group, []group.Invitation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return group.Group{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	g := group.Group{
		ID:          uuid.NewString(),
		PublicID:    uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     req.OwnerID,
		MemberCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = r.observe("groups.create", func() error {
		_, err := tx.Exec(ctx, `
			INSERT INTO groups (id, public_id, name, description, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			g.ID, g.PublicID, g.Name, g.Description, g.OwnerID, g.CreatedAt, g.UpdatedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1, $2, $3)`,
			g.ID, g.OwnerID, now,
		)
		return err
	})
	if err != nil {
		return group.Group{}, nil, err
	}

	invitations := make([]group.Invitation, 0, len(req.InviteeIDs))
	seen := map[string]struct{}{req.OwnerID: {}}

	for _, inviteeID := range req.InviteeIDs {
		if _, dup := seen[inviteeID]; dup {
			continue
		}
		seen[inviteeID] = struct{}{}

		inv := group.Invitation{
			ID:        uuid.NewString(),
			GroupID:   g.ID,
			GroupName: g.Name,
			InviterID: g.OwnerID,
			InviteeID: inviteeID,
			Status:    group.InvitationPending,
			CreatedAt: now,
		}

		err = r.observe("groups.create.invite", func() error {
			_, err := tx.Exec(ctx, `
				INSERT INTO group_invitations (id, group_id, inviter_id, invitee_id, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $6)`,
				inv.ID, inv.GroupID, inv.InviterID, inv.InviteeID, string(inv.Status), inv.CreatedAt,
			)
			return err
		})
		if err != nil {
			return group.Group{}, nil, err
		}

		jobReq, err := jobs.NewRequest(jobs.JobGroupInvitation, jobs.GroupInvitationPayload{
			InvitationID: inv.ID,
			GroupID:      g.ID,
			GroupName:    g.Name,
			InviterID:    inv.InviterID,
			InviteeID:    inv.InviteeID,
		}, "invitation:"+inv.ID)
		if err != nil {
			return group.Group{}, nil, err
		}

		if _, err := r.jobs.CreateTx(ctx, tx, jobReq); err != nil {
			return group.Group{}, nil, fmt.Errorf("enqueue invitation notice: %w", err)
		}

		invitations = append(invitations, inv)
	}

	if err := tx.Commit(ctx); err != nil {
		return group.Group{}, nil, err
	}
	return g, invitations, nil
}

func (r *GroupsRepo) ListByMember(ctx context.Context, userID string) ([]group.Group, error) {
	return r.queryGroups(ctx, "groups.list_by_member", groupSelect+`
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC, g.id DESC`, userID)
}

// Search matches names case-insensitively; an empty term lists the newest.
func (r *GroupsRepo) Search(ctx context.Context, term string, limit int) ([]group.Group, error) {
	return r.queryGroups(ctx, "groups.search", groupSelect+`
		WHERE g.name ILIKE '%' || $1 || '%'
		ORDER BY g.created_at DESC, g.id DESC
		LIMIT $2`, term, limit)
}

func (r *GroupsRepo) GetByPublicID(ctx context.Context, publicID string) (group.Group, error) {
	var g group.Group

	err := r.observe("groups.get_by_public_id", func() error {
		return scanGroup(r.pool.QueryRow(ctx, groupSelect+` WHERE g.public_id = $1`, publicID), &g)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group.Group{}, group.ErrNotFound
		}
		return group.Group{}, err
	}
	return g, nil
}

func (r *GroupsRepo) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var ok bool

	err := r.observe("groups.is_member", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
			groupID, userID).Scan(&ok)
	})
	return ok, err
}

func (r *GroupsRepo) ListPendingInvitations(ctx context.Context, userID string) ([]group.Invitation, error) {
	out := make([]group.Invitation, 0)

	err := r.observe("groups.list_invitations", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT i.id, i.group_id, g.name, i.inviter_id, i.invitee_id, i.status, i.created_at
			FROM group_invitations i
			JOIN groups g ON g.id = i.group_id
			WHERE i.invitee_id = $1 AND i.status = 'pending'
			ORDER BY i.created_at DESC, i.id DESC`, userID)
		if err != nil {
			return err
		}

		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (group.Invitation, error) {
			var (
				inv    group.Invitation
				status string
			)
			err := row.Scan(&inv.ID, &inv.GroupID, &inv.GroupName, &inv.InviterID, &inv.InviteeID, &status, &inv.CreatedAt)
			inv.Status = group.InvitationStatus(status)
			return inv, err
		})
		return err
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

// RespondInvitation answers a pending invitation addressed to inviteeID.
// Invitations addressed to someone else look like they do not exist.
func (r *GroupsRepo) RespondInvitation(ctx context.Context, inviteID, groupID, inviteeID string, accept bool) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner, status string
	err = r.observe("groups.respond.lock", func() error {
		return tx.QueryRow(ctx, `
			SELECT invitee_id, status
			FROM group_invitations
			WHERE id = $1 AND group_id = $2
			FOR UPDATE`, inviteID, groupID).Scan(&owner, &status)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group.ErrInvitationNotFound
		}
		return err
	}

	if owner != inviteeID {
		return group.ErrInvitationNotFound
	}
	if group.InvitationStatus(status) != group.InvitationPending {
		return group.ErrInvitationResolved
	}

	next := group.InvitationDeclined
	if accept {
		next = group.InvitationAccepted
	}

	err = r.observe("groups.respond.update", func() error {
		_, err := tx.Exec(ctx, `
			UPDATE group_invitations SET status = $2, updated_at = NOW() WHERE id = $1`,
			inviteID, string(next))
		if err != nil || !accept {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO group_members (group_id, user_id, joined_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT DO NOTHING`, groupID, inviteeID)
		return err
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
