package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
	ErrItemExists      = errors.New("item already exists")
	ErrItemNotFound    = errors.New("item not found")
	ErrNoFile          = errors.New("item has no file")
	ErrInvalidInput    = errors.New("invalid catalog input")
)

var subjectKeySpace = regexp.MustCompile(`\s+`)

// Options configures a Store.
type Options struct {
	// FilesDir holds the files items point at. Required.
	FilesDir string
	// CacheSize bounds the cached title to path lookups. Zero means 1024.
	CacheSize int
	// Gorm overrides the gorm configuration. Nil silences gorm's logger.
	Gorm   *gorm.Config
	Logger *zap.Logger
	Now    func() time.Time
}

// Store is the gorm-backed catalog.
type Store struct {
	db       *gorm.DB
	filesDir string
	paths    gcache.Cache
	logger   *zap.Logger
	now      func() time.Time
}

var (
	_ goDeliver.AccountDirectory = (*Store)(nil)
	_ goDeliver.FileRegistry     = (*Store)(nil)
	_ goDeliver.PurchaseLedger   = (*Store)(nil)
)

// Open connects to dsn through the named dialect and migrates the schema.
func Open(driver, dsn string, opts Options) (*Store, error) {
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	cfg := opts.Gorm
	if cfg == nil {
		cfg = &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	}
	db, err := gorm.Open(d, cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", driver, err)
	}
	return New(db, opts)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, errors.New("catalog: nil db")
	}
	if strings.TrimSpace(opts.FilesDir) == "" {
		return nil, errors.New("catalog: files dir required")
	}
	if err := os.MkdirAll(opts.FilesDir, 0o750); err != nil {
		return nil, fmt.Errorf("catalog: create files dir: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		db:       db,
		filesDir: opts.FilesDir,
		logger:   opts.Logger.Named("catalog"),
		now:      opts.Now,
	}
	s.paths = gcache.New(opts.CacheSize).LRU().LoaderFunc(s.loadFilePath).Build()
	return s, nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FilesDir returns the directory item files live in.
func (s *Store) FilesDir() string {
	return s.filesDir
}

// Close releases the database connection.
func (s *Store) Close() error {
	s.paths.Purge()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreatePurchaser registers a buyer with an already encoded password hash.
// Emails are unique.
func (s *Store) CreatePurchaser(ctx context.Context, name, email, passwordHash string) (Purchaser, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || passwordHash == "" {
		return Purchaser{}, fmt.Errorf("%w: name, email and password required", ErrInvalidInput)
	}

	p := Purchaser{Email: email, Name: name, PasswordHash: passwordHash, CreatedAt: s.now().UTC()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Purchaser
		err := tx.First(&existing, "email = ?", email).Error
		if err == nil {
			return ErrAccountExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&p).Error
	})
	if err != nil {
		return Purchaser{}, err
	}
	return p, nil
}

// GetPurchaser returns the account for email, including its password hash.
func (s *Store) GetPurchaser(ctx context.Context, email string) (Purchaser, error) {
	var p Purchaser
	err := s.db.WithContext(ctx).First(&p, "email = ?", strings.TrimSpace(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Purchaser{}, ErrAccountNotFound
	}
	if err != nil {
		return Purchaser{}, err
	}
	return p, nil
}

// SetPasswordHash replaces the stored hash for email.
func (s *Store) SetPasswordHash(ctx context.Context, email, passwordHash string) error {
	if passwordHash == "" {
		return fmt.Errorf("%w: password required", ErrInvalidInput)
	}
	res := s.db.WithContext(ctx).
		Model(&Purchaser{}).
		Where("email = ?", strings.TrimSpace(email)).
		Update("password_hash", passwordHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// LookupAccount implements goDeliver.AccountDirectory.
func (s *Store) LookupAccount(ctx context.Context, accountID string) (goDeliver.Purchaser, bool, error) {
	var p Purchaser
	err := s.db.WithContext(ctx).First(&p, "email = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return goDeliver.Purchaser{}, false, nil
	}
	if err != nil {
		return goDeliver.Purchaser{}, false, err
	}
	return goDeliver.Purchaser{ID: p.Email, Name: p.Name, Email: p.Email}, true, nil
}

// ListPurchasers returns every account in registration order.
func (s *Store) ListPurchasers(ctx context.Context) ([]Purchaser, error) {
	var out []Purchaser
	if err := s.db.WithContext(ctx).Order("created_at, email").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Purchases returns the ledger for one account, oldest first.
func (s *Store) Purchases(ctx context.Context, email string) ([]Purchase, error) {
	db := s.db.WithContext(ctx)
	var p Purchaser
	if err := db.First(&p, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	var out []Purchase
	if err := db.Where("account = ?", email).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// AppendPurchase implements goDeliver.PurchaseLedger. All entries land in one
// transaction.
func (s *Store) AppendPurchase(ctx context.Context, accountID string, entries []goDeliver.PurchaseEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]Purchase, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, Purchase{
			Account:     accountID,
			Title:       e.Item,
			UnitPrice:   e.UnitPrice,
			Quantity:    e.Quantity,
			InvoiceRef:  e.InvoiceRef,
			PurchasedAt: e.PurchasedAt.UTC(),
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// NewItem describes an item to add.
type NewItem struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Subject     string
	Filename    string
}

// AddItem stores a new item. Filename, when set, must already exist under
// the files directory.
func (s *Store) AddItem(ctx context.Context, in NewItem) (Item, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return Item{}, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if in.Price.IsNegative() {
		return Item{}, fmt.Errorf("%w: price must be >= 0", ErrInvalidInput)
	}
	if in.Filename != "" && in.Filename != filepath.Base(in.Filename) {
		return Item{}, fmt.Errorf("%w: filename must be a base name", ErrInvalidInput)
	}

	item := Item{
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Subject:     strings.TrimSpace(in.Subject),
		Filename:    in.Filename,
		CreatedAt:   s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Item
		err := tx.First(&existing, "title = ?", item.Title).Error
		if err == nil {
			return ErrItemExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&item).Error
	})
	s.paths.Remove(item.Title)
	if err != nil {
		return Item{}, err
	}
	s.logger.Info("item added", zap.String("title", item.Title), zap.Bool("has_file", item.Filename != ""))
	return item, nil
}

// RemoveItem deletes an item and reports whether its file was deleted too.
// The file stays on disk while any other item still refers to it.
func (s *Store) RemoveItem(ctx context.Context, title string) (bool, error) {
	var removed Item
	var stillUsed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&removed, "title = ?", title).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		if err := tx.Delete(&removed).Error; err != nil {
			return err
		}
		if removed.Filename == "" {
			return nil
		}
		var n int64
		if err := tx.Model(&Item{}).Where("filename = ?", removed.Filename).Count(&n).Error; err != nil {
			return err
		}
		stillUsed = n > 0
		return nil
	})
	s.paths.Remove(title)
	if err != nil {
		return false, err
	}

	if removed.Filename == "" || stillUsed {
		return false, nil
	}
	if err := os.Remove(filepath.Join(s.filesDir, removed.Filename)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		s.logger.Warn("item file not removed", zap.String("title", title), zap.Error(err))
		return false, nil
	}
	s.logger.Info("item file removed", zap.String("title", title), zap.String("file", removed.Filename))
	return true, nil
}

// ListItems returns items in the order they were added.
func (s *Store) ListItems(ctx context.Context) ([]Item, error) {
	var out []Item
	if err := s.db.WithContext(ctx).Order("created_at, title").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetItem returns one item by title.
func (s *Store) GetItem(ctx context.Context, title string) (Item, error) {
	var it Item
	if err := s.db.WithContext(ctx).First(&it, "title = ?", title).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return it, nil
}

// ResolveFilePath implements goDeliver.FileRegistry. Lookups are cached until
// the item is added or removed through this Store.
func (s *Store) ResolveFilePath(ctx context.Context, item string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := s.paths.Get(item)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Store) loadFilePath(key interface{}) (interface{}, error) {
	title, _ := key.(string)
	var it Item
	if err := s.db.First(&it, "title = ?", title).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	if it.Filename == "" {
		return nil, ErrNoFile
	}
	return filepath.Join(s.filesDir, it.Filename), nil
}

// SaveFile copies r into the files directory under a fresh name derived from
// original and returns that name.
func (s *Store) SaveFile(ctx context.Context, original string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	name := strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + "-" + base

	f, err := os.OpenFile(filepath.Join(s.filesDir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("catalog: create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("catalog: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("catalog: write file: %w", err)
	}
	return name, nil
}

// AddSubject creates or renames a subject. The key is the lowercased code with
// whitespace runs replaced by underscores; the display text is "CODE - Name".
func (s *Store) AddSubject(ctx context.Context, code, name string) (Subject, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return Subject{}, fmt.Errorf("%w: subject code and name required", ErrInvalidInput)
	}
	sub := Subject{
		Key:     SubjectKey(code),
		Display: code + " - " + name,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"display"}),
	}).Create(&sub).Error
	if err != nil {
		return Subject{}, err
	}
	return sub, nil
}

// SubjectKey normalizes a subject code.
func SubjectKey(code string) string {
	return subjectKeySpace.ReplaceAllString(strings.ToLower(strings.TrimSpace(code)), "_")
}

// ListSubjects returns subject key to display text.
func (s *Store) ListSubjects(ctx context.Context) (map[string]string, error) {
	var rows []Subject
	if err := s.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Display
	}
	return out, nil
}

// Setting returns the value stored under key and whether it exists.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var row Setting
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

// PutSetting stores value under key, replacing any previous value.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	row := Setting{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}
