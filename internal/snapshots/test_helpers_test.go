package snapshots

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appminuta/mapa-ventas/internal/inventory"
	sqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var businessZone = time.FixedZone("ART", -3*60*60)

func openSnapshotDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	require.NoError(t, db.AutoMigrate(&inventory.Project{}, &inventory.Unit{}, &Snapshot{}, &SnapshotDetail{}))
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(duration)
}

type sequentialIDs struct {
	mu      sync.Mutex
	counter int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter++
	return fmt.Sprintf("snap-%03d", p.counter), nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []GenerationSummary
}

func (n *recordingNotifier) SnapshotGenerated(summary GenerationSummary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
}

type serviceFixture struct {
	db       *gorm.DB
	service  *Service
	clock    *testClock
	notifier *recordingNotifier
}

func newServiceFixture(t *testing.T) serviceFixture {
	return newWrappedServiceFixture(t, 1, nil)
}

// newWrappedServiceFixture lets a test decorate the sqlite-backed inventory source.
func newWrappedServiceFixture(t *testing.T, concurrency int, wrap func(InventorySource) InventorySource) serviceFixture {
	t.Helper()
	db := openSnapshotDatabase(t)
	repository, err := inventory.NewRepository(inventory.RepositoryConfig{Database: db})
	require.NoError(t, err)
	var source InventorySource = repository
	if wrap != nil {
		source = wrap(repository)
	}
	clock := newTestClock(time.Date(2024, time.March, 10, 23, 55, 0, 0, businessZone))
	notifier := &recordingNotifier{}
	service, err := NewService(ServiceConfig{
		Database:    db,
		Inventory:   source,
		IDProvider:  &sequentialIDs{},
		Notifier:    notifier,
		Clock:       clock.Now,
		Location:    businessZone,
		Concurrency: concurrency,
	})
	require.NoError(t, err)
	return serviceFixture{db: db, service: service, clock: clock, notifier: notifier}
}

func seedProject(t *testing.T, db *gorm.DB, id, name string) {
	t.Helper()
	require.NoError(t, db.Create(&inventory.Project{ID: id, Nombre: name, Activo: true}).Error)
}

func seedUnit(t *testing.T, db *gorm.DB, id, projectName, status string, price int64) {
	t.Helper()
	unit := inventory.Unit{
		ID:          id,
		ProjectName: projectName,
		Type:        "Departamento",
		PriceUSD:    decimal.NewNullDecimal(decimal.NewFromInt(price)),
	}
	if status != "" {
		label := status
		unit.Status = &label
	}
	require.NoError(t, db.Create(&unit).Error)
}

func setUnitStatus(t *testing.T, db *gorm.DB, id, status string) {
	t.Helper()
	require.NoError(t, db.Model(&inventory.Unit{}).Where("id = ?", id).Update("estado", status).Error)
}

func loadDetails(t *testing.T, db *gorm.DB, snapshotID string) map[string]SnapshotDetail {
	t.Helper()
	var details []SnapshotDetail
	require.NoError(t, db.Where("snapshot_id = ?", snapshotID).Find(&details).Error)
	byUnit := make(map[string]SnapshotDetail, len(details))
	for _, detail := range details {
		byUnit[detail.UnidadID] = detail
	}
	return byUnit
}

func seedHeader(t *testing.T, db *gorm.DB, header Snapshot) {
	t.Helper()
	require.NoError(t, db.Omit("Project").Create(&header).Error)
}

type failingInventory struct {
	InventorySource
	failOn string
	err    error
}

func (f failingInventory) UnitsByProject(ctx context.Context, projectName string) ([]inventory.Unit, error) {
	if projectName == f.failOn {
		return nil, f.err
	}
	return f.InventorySource.UnitsByProject(ctx, projectName)
}

type cancelingInventory struct {
	InventorySource
	cancelOn string
	cancel   context.CancelFunc
}

func (c cancelingInventory) UnitsByProject(ctx context.Context, projectName string) ([]inventory.Unit, error) {
	if projectName == c.cancelOn {
		c.cancel()
		return nil, nil
	}
	return c.InventorySource.UnitsByProject(ctx, projectName)
}

// stallingInventory blocks slowOn until the run is canceled and fails failOn once slowOn has started.
type stallingInventory struct {
	InventorySource
	failOn  string
	slowOn  string
	started chan struct{}
	err     error
}

func (s stallingInventory) UnitsByProject(ctx context.Context, projectName string) ([]inventory.Unit, error) {
	switch projectName {
	case s.slowOn:
		close(s.started)
		<-ctx.Done()
		return nil, ctx.Err()
	case s.failOn:
		select {
		case <-s.started:
		case <-time.After(5 * time.Second):
		}
		return nil, s.err
	}
	return s.InventorySource.UnitsByProject(ctx, projectName)
}

func day(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}
