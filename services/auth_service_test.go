package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"aslab_go/cache"
	"aslab_go/models"
	"aslab_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	To, Subject, Text string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *fakeMailer) Send(_ context.Context, _, to, subject, text, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Text: text})
	return nil
}

type authFixture struct {
	auth   *AuthService
	users  *UserService
	perms  *PermissionService
	store  *cache.MemoryStore
	mailer *fakeMailer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := newDB(t)
	perms := NewPermissionService(db)
	require.NoError(t, perms.EnsureCatalogue(context.Background()))
	store := cache.NewMemoryStore(time.Hour)
	t.Cleanup(store.Close)
	mailer := &fakeMailer{}
	return &authFixture{
		auth:   NewAuthService(db, perms, store, mailer, "https://lab.test/"),
		users:  NewUserService(db, perms),
		perms:  perms,
		store:  store,
		mailer: mailer,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	u, err := f.auth.Register(ctx, RegisterInput{Name: "Budi", Email: " Budi@Lab.test ", Password: "rahasia123"})
	require.NoError(t, err)
	assert.Equal(t, "budi@lab.test", u.Email)
	assert.Equal(t, models.RoleMahasiswa, u.Role)

	_, err = f.auth.Register(ctx, RegisterInput{Name: "Budi 2", Email: "budi@lab.test", Password: "rahasia123"})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := f.auth.Login(ctx, "BUDI@lab.test", "rahasia123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.auth.Login(ctx, "budi@lab.test", "salah")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.auth.Login(ctx, "nobody@lab.test", "rahasia123")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, perms, err := f.auth.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, RoleDefaults[models.RoleMahasiswa], perms)

	_, err = f.users.ToggleStatus(ctx, 999, u.ID)
	require.NoError(t, err)
	_, err = f.auth.Login(ctx, "budi@lab.test", "rahasia123")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestChangePasswordAndProfile(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	u, err := f.auth.Register(ctx, RegisterInput{Name: "Sari", Email: "sari@lab.test", Password: "rahasia123"})
	require.NoError(t, err)
	other, err := f.auth.Register(ctx, RegisterInput{Name: "Ani", Email: "ani@lab.test", Password: "rahasia123"})
	require.NoError(t, err)

	err = f.auth.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: "keliru", NewPassword: "barubaru1"})
	assert.ErrorIs(t, err, ErrValidation)
	require.NoError(t, f.auth.ChangePassword(ctx, u.ID, ChangePasswordInput{CurrentPassword: "rahasia123", NewPassword: "barubaru1"}))
	_, err = f.auth.Login(ctx, "sari@lab.test", "barubaru1")
	assert.NoError(t, err)

	_, err = f.auth.UpdateProfile(ctx, u.ID, ProfileInput{Name: "Sari", Email: other.Email})
	assert.ErrorIs(t, err, ErrConflict)
	got, err := f.auth.UpdateProfile(ctx, u.ID, ProfileInput{Name: "Sari W", Email: "sari@lab.test", Prodi: "SI", Semester: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, "Sari W", got.Name)
	assert.Equal(t, 3, *got.Semester)
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	_, err := f.auth.Register(ctx, RegisterInput{Name: "Dodi", Email: "dodi@lab.test", Password: "rahasia123"})
	require.NoError(t, err)

	require.NoError(t, f.auth.ForgotPassword(ctx, "ghost@lab.test"))
	assert.Empty(t, f.mailer.sent)

	require.NoError(t, f.auth.ForgotPassword(ctx, "dodi@lab.test"))
	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, "dodi@lab.test", mail.To)

	i := strings.Index(mail.Text, "https://lab.test/reset-password?token=")
	require.GreaterOrEqual(t, i, 0, mail.Text)
	link := strings.Fields(mail.Text[i:])[0]
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	assert.ErrorIs(t, f.auth.ResetPassword(ctx, token, "short"), ErrValidation)
	require.NoError(t, f.auth.ResetPassword(ctx, token, "passwordbaru"))
	_, err = f.auth.Login(ctx, "dodi@lab.test", "passwordbaru")
	assert.NoError(t, err)

	err = f.auth.ResetPassword(ctx, token, "passwordlagi")
	assert.ErrorIs(t, err, ErrValidation, "tokens are single use")
}

func TestForgotPasswordMailFailureDropsToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	_, err := f.auth.Register(ctx, RegisterInput{Name: "Eka", Email: "eka@lab.test", Password: "rahasia123"})
	require.NoError(t, err)
	f.mailer.fail = errors.New("smtp down")

	assert.Error(t, f.auth.ForgotPassword(ctx, "eka@lab.test"))
	assert.Zero(t, f.store.Len())
}

func TestUserCRUD(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	u, err := f.users.Create(ctx, UserInput{
		Name: "Aslab Baru", Email: "aslab@lab.test", Password: "rahasia123", Role: models.RoleAslab,
		RFIDCode: strPtr(" ab12 "), PiketDay: strPtr("senin"),
	})
	require.NoError(t, err)
	assert.Equal(t, "AB12", *u.RFIDCode)
	assert.Empty(t, u.Permissions, "role supplies the defaults")
	names, err := f.perms.UserPermissions(ctx, *u)
	require.NoError(t, err)
	assert.ElementsMatch(t, RoleDefaults[models.RoleAslab], names)

	_, err = f.users.Create(ctx, UserInput{Name: "X", Email: "x@lab.test", Password: "rahasia123", Role: models.RoleAslab, RFIDCode: strPtr("AB12")})
	assert.ErrorIs(t, err, ErrRFIDTaken)
	_, err = f.users.Create(ctx, UserInput{Name: "X", Email: "x@lab.test", Password: "short", Role: models.RoleAslab})
	assert.ErrorIs(t, err, ErrValidation)

	custom := []string{PermViewLoans}
	u, err = f.users.Update(ctx, u.ID, UserInput{Name: "Aslab Baru", Email: "aslab@lab.test", Role: models.RoleAslab, Permissions: &custom})
	require.NoError(t, err)
	require.Len(t, u.Permissions, 1)
	assert.Nil(t, u.RFIDCode, "rfid cleared when omitted")

	u, err = f.users.Update(ctx, u.ID, UserInput{Name: "Aslab Baru", Email: "aslab@lab.test", Role: models.RoleDosen})
	require.NoError(t, err)
	assert.Empty(t, u.Permissions, "role change drops direct grants")
	names, err = f.perms.UserPermissions(ctx, *u)
	require.NoError(t, err)
	assert.ElementsMatch(t, RoleDefaults[models.RoleDosen], names)

	u, err = f.users.Update(ctx, u.ID, UserInput{Name: "Aslab Baru", Email: "aslab@lab.test", Role: models.RoleDosen, Password: "gantipass1"})
	require.NoError(t, err)
	assert.NoError(t, utils.CheckPassword("gantipass1", u.Password))

	list, err := f.users.List(ctx, UserFilter{Role: models.RoleDosen})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, f.users.Delete(ctx, u.ID, u.ID), ErrForbidden)
	require.NoError(t, f.users.Delete(ctx, 999, u.ID))
	_, err = f.users.Get(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
