package user

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrSelfDemotion   = errors.New("cannot change the role of your own account")
	ErrLastAdmin      = errors.New("cannot demote or deactivate the last active admin")
	ErrSelfDeletion   = errors.New("cannot delete your own account")
	ErrUserNotActive  = errors.New("user account is deactivated")
	ErrInvalidToken   = errors.New("invalid or expired reset token")
	errMissingMailSvc = errors.New("mail service is not configured")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		// UpdateOrCreateUser matches on email; used by the admin CLI.
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		CheckUniqueness(email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Update(ctx context.Context, origUsr User, uu UpdateUser) (User, error)
		UpdateRole(ctx context.Context, actor User, usr User, role Role) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, actor User, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		UpdateOrCreate(ctx context.Context, usr User) (User, error)
		Counts(ctx context.Context) (RoleCounts, error)
	}

	service struct {
		conf    *core.Config
		repo    Repository
		mailSvc core.EmailService
		log     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService, log core.Logger) Service {
	return &service{
		conf:    conf,
		repo:    repo,
		mailSvc: mailSvc,
		log:     log,
	}
}

func (svc *service) CheckUniqueness(email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, exclUsers...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      RoleFromString(nu.Role),
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Query fetches all accounts then applies filter, ordering and a stable
// name sort in memory. The account table is small enough that pushing the
// search down to the database buys nothing, and folding diacritics in Go
// keeps the matching rules in one place.
func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	users, err := svc.repo.QueryAllUsers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	if filter != nil && !filter.IsEmpty() {
		filtered := make([]User, 0, len(users))
		for _, usr := range users {
			if filter.Match(usr) {
				filtered = append(filtered, usr)
			}
		}
		users = filtered
	}

	sortUsers(users, ordering)
	return users, nil
}

func sortUsers(users []User, ordering []core.DBOrdering) {
	ord := core.DBOrdering{Field: "name", Ascending: true}
	if len(ordering) > 0 {
		ord = ordering[0]
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if !ord.Ascending {
			a, b = b, a
		}
		switch ord.Field {
		case "email":
			return core.CompareFold(a.Email, b.Email) < 0
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		case "last_login":
			return a.LastLogin.Before(b.LastLogin)
		default:
			return core.CompareFold(a.Name, b.Name) < 0
		}
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) Update(ctx context.Context, origUsr User, uu UpdateUser) (User, error) {
	usr := User{
		ID:        origUsr.ID,
		Name:      uu.Name,
		Email:     uu.Email,
		Role:      origUsr.Role,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Role != "" {
		usr.Role = RoleFromString(uu.Role)
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}

	if demotesOrDeactivates(origUsr, usr.Role, uu.IsActive) {
		if err := svc.guardLastAdmin(ctx, origUsr); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

// UpdateRole changes an account's role. Admins cannot change their own role
// and the last active admin cannot be demoted.
func (svc *service) UpdateRole(ctx context.Context, actor User, usr User, role Role) (User, error) {
	if actor.ID == usr.ID && role != actor.Role {
		return User{}, ErrSelfDemotion
	}
	if usr.IsAdmin() && role != RoleAdmin {
		if err := svc.guardLastAdmin(ctx, usr); err != nil {
			return User{}, err
		}
	}
	upd := User{
		ID:        usr.ID,
		Role:      role,
		UpdatedAt: time.Now().UTC(),
	}
	return svc.repo.UpdateUser(ctx, upd, nil)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	upd := User{
		ID:        usr.ID,
		LastLogin: time.Now().UTC(),
	}
	return svc.repo.UpdateUser(ctx, upd, nil)
}

func (svc *service) Delete(ctx context.Context, actor User, ids ...string) error {
	for _, id := range ids {
		if id == actor.ID {
			return ErrSelfDeletion
		}
	}
	admins, err := svc.activeAdmins(ctx)
	if err != nil {
		return err
	}
	remaining := 0
	for _, adm := range admins {
		deleted := false
		for _, id := range ids {
			if adm.ID == id {
				deleted = true
				break
			}
		}
		if !deleted {
			remaining++
		}
	}
	if len(admins) > 0 && remaining == 0 {
		return ErrLastAdmin
	}
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrUserNotActive
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return ErrInvalidToken
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrInvalidToken
		}
		return err
	}
	if err = verifyToken(svc.conf, usr, rp.Token); err != nil {
		return ErrInvalidToken
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr, nil)
	return err
}

func (svc *service) UpdateOrCreate(ctx context.Context, usr User) (User, error) {
	return svc.repo.UpdateOrCreateUser(ctx, usr)
}

func (svc *service) Counts(ctx context.Context) (RoleCounts, error) {
	users, err := svc.repo.QueryAllUsers(ctx)
	if err != nil {
		return RoleCounts{}, errors.Wrap(err, "querying users")
	}
	counts := RoleCounts{Total: len(users)}
	for _, usr := range users {
		if usr.IsAdmin() {
			counts.AdminCount++
		} else {
			counts.UserCount++
		}
	}
	return counts, nil
}

func demotesOrDeactivates(origUsr User, newRole Role, isActive *bool) bool {
	if !origUsr.IsAdmin() || !origUsr.Active() {
		return false
	}
	if newRole != RoleAdmin {
		return true
	}
	return isActive != nil && !*isActive
}

func (svc *service) guardLastAdmin(ctx context.Context, usr User) error {
	admins, err := svc.activeAdmins(ctx)
	if err != nil {
		return err
	}
	for _, adm := range admins {
		if adm.ID != usr.ID {
			return nil
		}
	}
	return ErrLastAdmin
}

func (svc *service) activeAdmins(ctx context.Context) ([]User, error) {
	users, err := svc.repo.QueryAllUsers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	admins := make([]User, 0, len(users))
	for _, usr := range users {
		if usr.IsAdmin() && usr.Active() {
			admins = append(admins, usr)
		}
	}
	return admins, nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	if svc.mailSvc == nil {
		svc.log.Error("requesting password reset", errMissingMailSvc)
		return
	}
	token, err := MakeToken(svc.conf, usr)
	if err != nil {
		svc.log.Error("generating password reset token", err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Name  string
			UID   string
			Token string
		}{
			Name:  usr.Name,
			UID:   EncodeUID(usr),
			Token: token,
		},
	})
}
