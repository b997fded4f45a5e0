package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"invman/internal/models"
	"invman/internal/ratelimit"
	"invman/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

// Мок-репозиторий пользователей (заглушка)
type mockUserRepo struct {
	mu        sync.Mutex
	users     map[string]*models.User // ключ — email или username
	passwords map[int64]string
	findCalls int
	setCalls  int
	failSet   bool
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		users:     make(map[string]*models.User),
		passwords: make(map[int64]string),
	}
}

func (m *mockUserRepo) FindByEmailOrUsername(_ context.Context, identifier string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	u, ok := m.users[identifier]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (m *mockUserRepo) SetPassword(_ context.Context, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.failSet {
		return errors.New("credential store down")
	}
	m.passwords[userID] = passwordHash
	return nil
}

// Мок-хранилище токенов: CAS на used_at под мьютексом, как в репозитории
type mockTokenStore struct {
	mu          sync.Mutex
	seq         int64
	tokens      map[int64]*models.PasswordResetToken
	insertCalls int
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[int64]*models.PasswordResetToken)}
}

func (m *mockTokenStore) Insert(_ context.Context, t *models.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	m.seq++
	t.ID = m.seq
	t.CreatedAt = time.Now()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *mockTokenStore) FindUnusedByDigest(_ context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash && t.UsedAt == nil {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTokenStore) MarkUsed(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.UsedAt != nil {
		return false, nil
	}
	now := time.Now()
	t.UsedAt = &now
	return true, nil
}

func (m *mockTokenStore) unusedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.UsedAt == nil {
			n++
		}
	}
	return n
}

type mockSender struct {
	mu       sync.Mutex
	calls    int
	lastTo   string
	lastLink string
	fail     bool
}

func (m *mockSender) SendResetLink(_ context.Context, to, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastTo = to
	m.lastLink = link
	if m.fail {
		return errors.New("smtp down")
	}
	return nil
}

type stubLimiter struct {
	mu      sync.Mutex
	allowed bool
	calls   int
}

func (l *stubLimiter) Allow(_ context.Context, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.allowed, nil
}

func newTestService(users *mockUserRepo, tokens *mockTokenStore, sender *mockSender, limiter ratelimit.Limiter) *PasswordResetService {
	return NewPasswordResetService(tokens, users, sender, limiter, "https://inv.example.com", time.Hour)
}

func seedUser(users *mockUserRepo) *models.User {
	u := &models.User{ID: 7, Username: "jdoe", FullName: "John Doe", Email: "jdoe@example.com"}
	users.users["jdoe"] = u
	users.users["jdoe@example.com"] = u
	return u
}

// secretFromLink достаёт секрет из ссылки письма.
func secretFromLink(t *testing.T, link string) string {
	t.Helper()
	i := strings.Index(link, "token=")
	if i < 0 {
		t.Fatalf("в ссылке нет токена: %q", link)
	}
	return link[i+len("token="):]
}

func TestRequestReset_IssuesTokenAndSendsLink(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	seedUser(users)
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})

	if err := svc.RequestReset(context.Background(), "jdoe@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if tokens.insertCalls != 1 {
		t.Fatalf("ожидался один сохранённый токен, получили %d", tokens.insertCalls)
	}
	if sender.calls != 1 || sender.lastTo != "jdoe@example.com" {
		t.Fatalf("письмо не дошло до адресата: calls=%d to=%q", sender.calls, sender.lastTo)
	}

	secret := secretFromLink(t, sender.lastLink)
	if len(secret) != 64 {
		t.Fatalf("секрет должен быть 64 hex-символа, получили %d", len(secret))
	}

	// В хранилище лежит дайджест, не секрет
	rec, err := tokens.FindUnusedByDigest(context.Background(), utils.HashResetToken(secret))
	if err != nil || rec == nil {
		t.Fatal("токен не найден по дайджесту секрета")
	}
	if rec.TokenHash == secret {
		t.Fatal("в хранилище оказался секрет в открытом виде")
	}
	if rec.RequestIP != "203.0.113.7" {
		t.Fatalf("request_ip не сохранён: %q", rec.RequestIP)
	}
	if until := time.Until(rec.ExpiresAt); until < 55*time.Minute || until > time.Hour {
		t.Fatalf("TTL токена вне ожидаемого часа: %v", until)
	}
}

// Неизвестный идентификатор неотличим снаружи от успешного выпуска.
func TestRequestReset_UnknownIdentifierIndistinguishable(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})

	if err := svc.RequestReset(context.Background(), "nobody@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("анти-перечисление сломано, ошибка наружу: %v", err)
	}
	if tokens.insertCalls != 0 || sender.calls != 0 {
		t.Fatal("для несуществующего аккаунта не должно быть ни токена, ни письма")
	}
}

func TestRequestReset_RateLimitedSkipsAllWork(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	seedUser(users)
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: false})

	if err := svc.RequestReset(context.Background(), "jdoe", "203.0.113.7"); err != nil {
		t.Fatalf("отказ лимитера не должен быть виден снаружи: %v", err)
	}
	if users.findCalls != 0 || tokens.insertCalls != 0 || sender.calls != 0 {
		t.Fatalf("при отказе лимитера работа не выполняется: find=%d insert=%d send=%d",
			users.findCalls, tokens.insertCalls, sender.calls)
	}
}

func TestRequestReset_BlankIdentifier(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})

	if err := svc.RequestReset(context.Background(), "   ", "203.0.113.7"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if users.findCalls != 0 {
		t.Fatal("пустой идентификатор не должен доходить до резолва")
	}
}

func TestRequestReset_SendFailureSwallowed(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{fail: true}
	seedUser(users)
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})

	if err := svc.RequestReset(context.Background(), "jdoe", "203.0.113.7"); err != nil {
		t.Fatalf("сбой почты не должен менять внешний ответ: %v", err)
	}
	if tokens.insertCalls != 1 {
		t.Fatal("токен должен сохраниться даже при сбое почты")
	}
}

// Пять запросов с одного ключа проходят, шестой в том же окне молча гасится.
func TestRequestReset_LimiterBudget(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	seedUser(users)
	svc := newTestService(users, tokens, sender, ratelimit.NewMemory(time.Hour, 5))

	for i := 0; i < 6; i++ {
		if err := svc.RequestReset(context.Background(), "jdoe", "203.0.113.7"); err != nil {
			t.Fatalf("запрос %d: внешний исход всегда одинаков, ошибка %v", i+1, err)
		}
	}

	if users.findCalls != 5 || tokens.insertCalls != 5 || sender.calls != 5 {
		t.Fatalf("шестой запрос не должен доходить до коллабораторов: find=%d insert=%d send=%d",
			users.findCalls, tokens.insertCalls, sender.calls)
	}
}

func issueToken(t *testing.T, svc *PasswordResetService, sender *mockSender) string {
	t.Helper()
	if err := svc.RequestReset(context.Background(), "jdoe", "203.0.113.7"); err != nil {
		t.Fatalf("не удалось выпустить токен: %v", err)
	}
	return secretFromLink(t, sender.lastLink)
}

func TestResetPassword_SuccessExactlyOnce(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	u := seedUser(users)
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})
	secret := issueToken(t, svc, sender)

	if err := svc.ResetPassword(context.Background(), secret, "GoodPassw0rd!"); err != nil {
		t.Fatalf("сброс с валидным токеном и паролем должен пройти: %v", err)
	}

	hash := users.passwords[u.ID]
	if hash == "" || hash == "GoodPassw0rd!" {
		t.Fatal("пароль должен сохраниться в виде хеша")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("GoodPassw0rd!")); err != nil {
		t.Fatalf("хеш не соответствует новому паролю: %v", err)
	}

	// Повтор с тем же токеном — единый отказ
	err := svc.ResetPassword(context.Background(), secret, "GoodPassw0rd!")
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("повторное погашение должно давать ErrResetTokenInvalid, получили %v", err)
	}
}

func TestResetPassword_PolicyViolation(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	seedUser(users)
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})
	secret := issueToken(t, svc, sender)

	err := svc.ResetPassword(context.Background(), secret, "short1!")
	var policyErr *PolicyViolationError
	if !errors.As(err, &policyErr) {
		t.Fatalf("ожидалось нарушение политики, получили %v", err)
	}
	if policyErr.Message != "Password must be at least 10 characters long" {
		t.Fatalf("неожиданное сообщение: %q", policyErr.Message)
	}

	// Политика проверяется до поиска токена, токен остаётся живым
	if err := svc.ResetPassword(context.Background(), secret, "GoodPassw0rd!"); err != nil {
		t.Fatalf("токен должен пережить отклонённый пароль: %v", err)
	}
}

func TestResetPassword_UnknownToken(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})

	err := svc.ResetPassword(context.Background(), strings.Repeat("ab", 32), "GoodPassw0rd!")
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("ожидался единый отказ, получили %v", err)
	}
}

func TestResetPassword_Expired(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	u := seedUser(users)
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})

	secret, digest, err := utils.GenerateResetToken()
	if err != nil {
		t.Fatal(err)
	}
	_ = tokens.Insert(context.Background(), &models.PasswordResetToken{
		UserID:    u.ID,
		TokenHash: digest,
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	err = svc.ResetPassword(context.Background(), secret, "GoodPassw0rd!")
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("просроченный токен должен давать тот же единый отказ, получили %v", err)
	}
	if users.setCalls != 0 {
		t.Fatal("пароль не должен меняться по просроченному токену")
	}
}

func TestResetPassword_CredentialStoreFailureKeepsToken(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	seedUser(users)
	users.failSet = true
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})
	secret := issueToken(t, svc, sender)

	err := svc.ResetPassword(context.Background(), secret, "GoodPassw0rd!")
	if err == nil || errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("сбой хранилища учёток должен отдаваться как внутренняя ошибка, получили %v", err)
	}
	if tokens.unusedCount() != 1 {
		t.Fatal("токен не должен гаситься при сбое обновления пароля")
	}

	// После восстановления хранилища та же ссылка работает
	users.failSet = false
	if err := svc.ResetPassword(context.Background(), secret, "GoodPassw0rd!"); err != nil {
		t.Fatalf("повтор после сбоя должен пройти: %v", err)
	}
}

// Два параллельных погашения одного токена: ровно один успех.
func TestResetPassword_ConcurrentSingleUse(t *testing.T) {
	users, tokens, sender := newMockUserRepo(), newMockTokenStore(), &mockSender{}
	seedUser(users)
	svc := newTestService(users, tokens, sender, &stubLimiter{allowed: true})
	secret := issueToken(t, svc, sender)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.ResetPassword(context.Background(), secret, "GoodPassw0rd!")
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrResetTokenInvalid):
			rejected++
		default:
			t.Fatalf("неожиданная ошибка гонки: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("ожидался ровно один успех и один отказ, получили ok=%d rejected=%d", ok, rejected)
	}
}
