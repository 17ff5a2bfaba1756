// Package orgs manages organizations, their members and invitations.
//
// Membership is what the role resolver reads: a user's role inside the
// session's active organization is the role used on organization-scoped
// tables. Changes apply to the next request because the resolver never
// caches membership.
//
// # Organizations
//
// The creator of an organization becomes its first admin. Administrative
// operations (changing roles, removing members, inviting and canceling
// invitations) require the admin role in that organization. An
// organization always keeps at least one admin.
//
// Organizations the caller does not belong to are reported as not found,
// never as forbidden, so that their existence is not revealed.
//
// # Invitations
//
// Invitations follow a small state machine:
//
//	pending -> accepted | rejected | canceled | expired
//
// Every other transition is a conflict. Only the invited email address may
// accept or reject; anyone else gets not found. Accepting an expired
// invitation persists the expired state and reports gone. Accept runs in a
// single transaction with the invitation row locked, and inserts the
// membership with the invited role.
//
//	inv, err := svc.Invite(ctx, adminID, orgID, orgs.InviteRequest{Email: "ada@example.com", Role: "member"})
//	member, err := svc.Accept(ctx, orgs.Actor{UserID: adaID, Email: "ada@example.com"}, inv.ID)
package orgs
