package user

import (
	"context"

	"github.com/trucvy/vietschool/core"
)

type serviceMock struct {
	service
}

func NewServiceMock(conf *core.Config, repo Repository, mailSvc core.EmailService, log core.Logger) Service {
	return &serviceMock{
		service: service{
			conf:    conf,
			repo:    repo,
			mailSvc: mailSvc,
			log:     log,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrUserNotActive
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
