package accounts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"gomsle/internal/mailer"
	"gomsle/pkg/middleware"
	"gomsle/pkg/validation"
)

func newTestService() (*Service, *mailer.MemorySender) {
	mail := mailer.NewMemorySender()
	svc := NewService(NewMemoryStore(), mail, 7*24*time.Hour, zap.NewNop().Sugar())
	return svc, mail
}

func owner(id, email string) middleware.Principal {
	return middleware.Principal{UserID: id, Email: email, Authenticated: true}
}

func TestCreateAccountMakesCallerOwner(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	account, err := svc.Create(ctx, owner("u1", "owner@gomsle.com"), CreateCommand{Name: "Microsoft"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ok, err := svc.Authorize(ctx, account.ID, "u1", RoleOwner)
	if err != nil || !ok {
		t.Fatalf("expected creator to hold Owner, got ok=%v err=%v", ok, err)
	}

	// A second account with the same name must be rejected, case-insensitively.
	_, err = svc.Create(ctx, owner("u2", "other@gomsle.com"), CreateCommand{Name: "microsoft"})
	errs, ok := validation.AsErrors(err)
	if !ok || !errs.Has("Name", validation.CodeDuplicateName) {
		t.Fatalf("expected DuplicateName on Name, got %v", err)
	}
}

func TestCreateAccountRequiresAuthentication(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), middleware.Principal{}, CreateCommand{Name: "Contoso"})
	errs, ok := validation.AsErrors(err)
	if !ok || !errs.Has("", validation.CodeNotAuthorized) {
		t.Fatalf("expected NotAuthorized, got %v", err)
	}
}

func TestInviteValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	principal := owner("u1", "owner@gomsle.com")
	if _, err := svc.Create(ctx, principal, CreateCommand{Name: "Microsoft"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	cases := []struct {
		name  string
		cmd   InviteCommand
		field string
		code  string
	}{
		{"empty account name", InviteCommand{Email: "test@gomsle.com", Role: "Member", InvitationUrl: "https://gomsle.com/microsoft/invite"}, "AccountName", validation.CodeNotEmpty},
		{"empty email", InviteCommand{AccountName: "Microsoft", Role: "Member", InvitationUrl: "https://gomsle.com/microsoft/invite"}, "Email", validation.CodeNotEmpty},
		{"bad email", InviteCommand{AccountName: "Microsoft", Email: "not-an-email", Role: "Member", InvitationUrl: "https://gomsle.com/microsoft/invite"}, "Email", validation.CodeInvalidEmail},
		{"empty url", InviteCommand{AccountName: "Microsoft", Email: "test@gomsle.com", Role: "Member"}, "InvitationUrl", validation.CodeNotEmpty},
		{"relative url", InviteCommand{AccountName: "Microsoft", Email: "test@gomsle.com", Role: "Member", InvitationUrl: "/invite"}, "InvitationUrl", validation.CodeInvalidUri},
		{"empty role", InviteCommand{AccountName: "Microsoft", Email: "test@gomsle.com", InvitationUrl: "https://gomsle.com/microsoft/invite"}, "Role", validation.CodeNotEmpty},
		{"unknown role", InviteCommand{AccountName: "Microsoft", Email: "test@gomsle.com", Role: "Janitor", InvitationUrl: "https://gomsle.com/microsoft/invite"}, "Role", validation.CodeRoleIsInvalid},
		{"owner role", InviteCommand{AccountName: "Microsoft", Email: "test@gomsle.com", Role: "Owner", InvitationUrl: "https://gomsle.com/microsoft/invite"}, "Role", validation.CodeOnlyOneOwner},
		{"unknown account", InviteCommand{AccountName: "Fabrikam", Email: "test@gomsle.com", Role: "Member", InvitationUrl: "https://gomsle.com/microsoft/invite"}, "AccountName", validation.CodeAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Invite(ctx, principal, tc.cmd)
			errs, ok := validation.AsErrors(err)
			if !ok || !errs.Has(tc.field, tc.code) {
				t.Fatalf("expected %s on %s, got %v", tc.code, tc.field, err)
			}
		})
	}
}

func TestInviteSendsExactlyOneEmail(t *testing.T) {
	svc, mail := newTestService()
	ctx := context.Background()
	principal := owner("u1", "owner@gomsle.com")
	if _, err := svc.Create(ctx, principal, CreateCommand{Name: "Microsoft"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	inv, err := svc.Invite(ctx, principal, InviteCommand{
		AccountName:   "Microsoft",
		Email:         "test@gomsle.com",
		Role:          "Member",
		InvitationUrl: "https://gomsle.com/microsoft/invite",
	})
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	if inv.Role != RoleMember {
		t.Fatalf("expected Member invitation, got %s", inv.Role)
	}

	msgs := mail.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one email, got %d", len(msgs))
	}
	if msgs[0].To != "test@gomsle.com" {
		t.Fatalf("email sent to %q", msgs[0].To)
	}
}

func TestInviteAbortsWhenSendFails(t *testing.T) {
	svc, mail := newTestService()
	ctx := context.Background()
	principal := owner("u1", "owner@gomsle.com")
	if _, err := svc.Create(ctx, principal, CreateCommand{Name: "Microsoft"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	mail.Fail = true
	_, err := svc.Invite(ctx, principal, InviteCommand{
		AccountName:   "Microsoft",
		Email:         "test@gomsle.com",
		Role:          "Member",
		InvitationUrl: "https://gomsle.com/microsoft/invite",
	})
	if err == nil {
		t.Fatalf("expected invite to fail when the send fails")
	}
	if _, ok := validation.AsErrors(err); ok {
		t.Fatalf("send failure is not a validation failure: %v", err)
	}

	// Nothing was written, so the invitee cannot accept anything.
	mail.Fail = false
	_, err = svc.AcceptInvitation(ctx, owner("u2", "test@gomsle.com"), AcceptCommand{Token: "anything"})
	errs, ok := validation.AsErrors(err)
	if !ok || !errs.Has("Token", validation.CodeInvitationNotFound) {
		t.Fatalf("expected InvitationNotFound, got %v", err)
	}
}

func TestInviteRequiresAdministrator(t *testing.T) {
	svc, mail := newTestService()
	ctx := context.Background()
	principal := owner("u1", "owner@gomsle.com")
	if _, err := svc.Create(ctx, principal, CreateCommand{Name: "Microsoft"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Bring in a plain member.
	member := acceptInvite(t, svc, mail, principal, "member@gomsle.com", "Member", "u2")

	_, err := svc.Invite(ctx, member, InviteCommand{
		AccountName:   "Microsoft",
		Email:         "third@gomsle.com",
		Role:          "Member",
		InvitationUrl: "https://gomsle.com/microsoft/invite",
	})
	errs, ok := validation.AsErrors(err)
	if !ok || !errs.Has("AccountName", validation.CodeNotAuthorized) {
		t.Fatalf("expected NotAuthorized for member, got %v", err)
	}

	// An administrator may invite.
	admin := acceptInvite(t, svc, mail, principal, "admin@gomsle.com", "Administrator", "u3")
	if _, err := svc.Invite(ctx, admin, InviteCommand{
		AccountName:   "Microsoft",
		Email:         "fourth@gomsle.com",
		Role:          "Member",
		InvitationUrl: "https://gomsle.com/microsoft/invite",
	}); err != nil {
		t.Fatalf("administrator invite failed: %v", err)
	}
}

// acceptInvite invites email with role and accepts as userID, returning the
// new member's principal.
func acceptInvite(t *testing.T, svc *Service, mail *mailer.MemorySender, inviter middleware.Principal, email, role, userID string) middleware.Principal {
	t.Helper()
	ctx := context.Background()
	inv, err := svc.Invite(ctx, inviter, InviteCommand{
		AccountName:   "Microsoft",
		Email:         email,
		Role:          role,
		InvitationUrl: "https://gomsle.com/microsoft/invite",
	})
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	p := middleware.Principal{UserID: userID, Email: email, Authenticated: true}
	if _, err := svc.AcceptInvitation(ctx, p, AcceptCommand{Token: inv.Token}); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	return p
}

func TestAcceptInvitation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	principal := owner("u1", "owner@gomsle.com")
	account, err := svc.Create(ctx, principal, CreateCommand{Name: "Microsoft"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	inv, err := svc.Invite(ctx, principal, InviteCommand{
		AccountName:   "Microsoft",
		Email:         "Test@Gomsle.com",
		Role:          "Administrator",
		InvitationUrl: "https://gomsle.com/microsoft/invite",
	})
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}

	// A different user cannot redeem someone else's invitation.
	_, err = svc.AcceptInvitation(ctx, owner("u9", "stranger@gomsle.com"), AcceptCommand{Token: inv.Token})
	errs, ok := validation.AsErrors(err)
	if !ok || !errs.Has("Token", validation.CodeNotAuthorized) {
		t.Fatalf("expected NotAuthorized for wrong email, got %v", err)
	}

	// The invitee matches case-insensitively.
	invitee := owner("u2", "test@gomsle.com")
	m, err := svc.AcceptInvitation(ctx, invitee, AcceptCommand{Token: inv.Token})
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if m.Role != RoleAdministrator || m.AccountID != account.ID {
		t.Fatalf("unexpected membership %+v", m)
	}

	// Single use.
	_, err = svc.AcceptInvitation(ctx, invitee, AcceptCommand{Token: inv.Token})
	errs, ok = validation.AsErrors(err)
	if !ok || !errs.Has("Token", validation.CodeInvitationNotFound) {
		t.Fatalf("expected InvitationNotFound on reuse, got %v", err)
	}

	if n := ownerCount(t, svc, principal, account.ID); n != 1 {
		t.Fatalf("expected exactly 1 owner after acceptance, got %d", n)
	}
}

func ownerCount(t *testing.T, svc *Service, p middleware.Principal, accountID string) int {
	t.Helper()
	members, err := svc.Members(context.Background(), p, accountID)
	if err != nil {
		t.Fatalf("members failed: %v", err)
	}
	n := 0
	for _, m := range members {
		if m.Role == RoleOwner {
			n++
		}
	}
	return n
}

func TestAcceptInvitationNeverDemotesExistingMember(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	principal := owner("u1", "owner@gomsle.com")
	account, err := svc.Create(ctx, principal, CreateCommand{Name: "Microsoft"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Inviting the owner's own address as Member passes every field check;
	// accepting it must keep the existing Owner role.
	inv, err := svc.Invite(ctx, principal, InviteCommand{
		AccountName:   "Microsoft",
		Email:         "owner@gomsle.com",
		Role:          "Member",
		InvitationUrl: "https://gomsle.com/microsoft/invite",
	})
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	m, err := svc.AcceptInvitation(ctx, principal, AcceptCommand{Token: inv.Token})
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if m.Role != RoleOwner {
		t.Fatalf("expected Owner role to stand, got %v", m.Role)
	}
	if n := ownerCount(t, svc, principal, account.ID); n != 1 {
		t.Fatalf("expected exactly 1 owner, got %d", n)
	}
	ok, err := svc.Authorize(ctx, account.ID, "u1", RoleOwner)
	if err != nil || !ok {
		t.Fatalf("owner must keep Owner, got ok=%v err=%v", ok, err)
	}
}

func TestAcceptExpiredInvitation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	principal := owner("u1", "owner@gomsle.com")
	if _, err := svc.Create(ctx, principal, CreateCommand{Name: "Microsoft"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	inv, err := svc.Invite(ctx, principal, InviteCommand{
		AccountName:   "Microsoft",
		Email:         "test@gomsle.com",
		Role:          "Member",
		InvitationUrl: "https://gomsle.com/microsoft/invite",
	})
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = svc.AcceptInvitation(ctx, owner("u2", "test@gomsle.com"), AcceptCommand{Token: inv.Token})
	errs, ok := validation.AsErrors(err)
	if !ok || !errs.Has("Token", validation.CodeInvitationExpired) {
		t.Fatalf("expected InvitationExpired, got %v", err)
	}
}

func TestRoleHierarchy(t *testing.T) {
	if !RoleOwner.AtLeast(RoleMember) || !RoleOwner.AtLeast(RoleAdministrator) || !RoleOwner.AtLeast(RoleOwner) {
		t.Fatalf("owner must subsume every role")
	}
	if !RoleAdministrator.AtLeast(RoleMember) || RoleAdministrator.AtLeast(RoleOwner) {
		t.Fatalf("administrator subsumes member only")
	}
	if RoleMember.AtLeast(RoleAdministrator) {
		t.Fatalf("member must not subsume administrator")
	}
	if Role("Janitor").AtLeast(RoleMember) {
		t.Fatalf("unknown roles grant nothing")
	}
}

func TestAuthorizeNonMember(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	account, err := svc.Create(ctx, owner("u1", "owner@gomsle.com"), CreateCommand{Name: "Microsoft"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	ok, err := svc.Authorize(ctx, account.ID, "outsider", RoleMember)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if ok {
		t.Fatalf("non-member must not be authorized")
	}
}

func TestMembersListing(t *testing.T) {
	svc, mail := newTestService()
	ctx := context.Background()
	principal := owner("u1", "owner@gomsle.com")
	account, err := svc.Create(ctx, principal, CreateCommand{Name: "Microsoft"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	member := acceptInvite(t, svc, mail, principal, "member@gomsle.com", "Member", "u2")

	members, err := svc.Members(ctx, member, account.ID)
	if err != nil {
		t.Fatalf("members failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(members))
	}
	roles := map[string]Role{}
	for _, m := range members {
		roles[m.UserID] = m.Role
	}
	if roles["u1"] != RoleOwner || roles["u2"] != RoleMember {
		t.Fatalf("unexpected roles: %v", roles)
	}

	_, err = svc.Members(ctx, owner("outsider", "x@gomsle.com"), account.ID)
	errs, ok := validation.AsErrors(err)
	if !ok || !errs.Has("AccountId", validation.CodeNotAuthorized) {
		t.Fatalf("expected NotAuthorized for outsider, got %v", err)
	}
}
