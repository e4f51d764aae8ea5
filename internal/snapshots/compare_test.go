package snapshots

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCompareAlignsProjectsAndHandlesMissingPrevious(t *testing.T) {
	fixture := newServiceFixture(t)
	seedProject(t, fixture.db, "p-1", "Torre Norte")
	seedProject(t, fixture.db, "p-2", "Torre Sur")
	seedProject(t, fixture.db, "p-3", "Torre Este")
	current := day(2024, time.February, 29)
	previous := day(2024, time.January, 31)

	seedHeader(t, fixture.db, Snapshot{ID: "c-1", Fecha: current, Tipo: KindMonthly, ProjectID: "p-1",
		Disponibles: 8, Reservadas: 3, Vendidas: 12, ValorStockUSD: decimal.NewFromInt(1100000)})
	seedHeader(t, fixture.db, Snapshot{ID: "c-2", Fecha: current, Tipo: KindMonthly, ProjectID: "p-2",
		Disponibles: 20, Reservadas: 1, Vendidas: 0})
	seedHeader(t, fixture.db, Snapshot{ID: "a-1", Fecha: previous, Tipo: KindMonthly, ProjectID: "p-1",
		Disponibles: 10, Reservadas: 2, Vendidas: 10, ValorStockUSD: decimal.NewFromInt(1200000)})
	seedHeader(t, fixture.db, Snapshot{ID: "a-3", Fecha: previous, Tipo: KindMonthly, ProjectID: "p-3",
		Disponibles: 4})

	comparisons, err := fixture.service.Compare(context.Background(), ComparisonRequest{Current: current, Previous: previous})
	require.NoError(t, err)
	require.Len(t, comparisons, 2)

	byProject := map[string]ProjectComparison{}
	for _, comparison := range comparisons {
		byProject[comparison.ProjectID] = comparison
	}
	require.NotContains(t, byProject, "p-3")

	north := byProject["p-1"]
	require.Equal(t, "Torre Norte", north.ProjectName)
	require.NotNil(t, north.Previous)
	require.Equal(t, 10, north.Previous.Disponibles)
	require.True(t, north.Previous.ValorStockUSD.Equal(decimal.NewFromInt(1200000)))
	require.Equal(t, &Delta{Disponibles: -2, Reservadas: 1, Vendidas: 2}, north.Difference)

	south := byProject["p-2"]
	require.Equal(t, 20, south.Current.Disponibles)
	require.Nil(t, south.Previous)
	require.Nil(t, south.Difference)
}

func TestCompareFiltersByKindAndPrefersNewestHeader(t *testing.T) {
	fixture := newServiceFixture(t)
	seedProject(t, fixture.db, "p-1", "Torre Norte")
	current := day(2024, time.March, 31)
	previous := day(2024, time.March, 30)
	createdAt := time.Date(2024, time.March, 31, 23, 55, 0, 0, time.UTC)

	seedHeader(t, fixture.db, Snapshot{ID: "daily", Fecha: current, Tipo: KindDaily, ProjectID: "p-1",
		Disponibles: 5, CreatedAt: createdAt})
	seedHeader(t, fixture.db, Snapshot{ID: "monthly", Fecha: current, Tipo: KindMonthly, ProjectID: "p-1",
		Disponibles: 7, CreatedAt: createdAt.Add(-5 * time.Minute)})
	seedHeader(t, fixture.db, Snapshot{ID: "prior", Fecha: previous, Tipo: KindDaily, ProjectID: "p-1",
		Disponibles: 6})

	anyKind, err := fixture.service.Compare(context.Background(), ComparisonRequest{Current: current, Previous: previous})
	require.NoError(t, err)
	require.Len(t, anyKind, 1)
	require.Equal(t, 5, anyKind[0].Current.Disponibles)
	require.Equal(t, -1, anyKind[0].Difference.Disponibles)

	monthly, err := fixture.service.Compare(context.Background(), ComparisonRequest{Current: current, Previous: previous, Kind: KindMonthly})
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	require.Equal(t, 7, monthly[0].Current.Disponibles)
	require.Nil(t, monthly[0].Previous)
}
