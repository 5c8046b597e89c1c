package metrics

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersBeforeInitAreNoops(t *testing.T) {
	assert.NotPanics(t, func() {
		IncDelivery("delivered")
		ObserveExecution("protocol_success", time.Second)
		SetPendingTimers(-1)
	})
}

func TestCountersAfterInit(t *testing.T) {
	Init(nil, nil)

	IncCommandIssued()
	IncDelivery("no_collector")
	IncFinal("failure")
	AddFinal("timeout", 3)
	AddFinal("timeout", 0)
	SetPendingTimers(4)
	IncResultDropped("")

	assert.Equal(t, float64(1), testutil.ToFloat64(commandIssued))
	assert.Equal(t, float64(1), testutil.ToFloat64(commandDelivery.WithLabelValues("no_collector")))
	assert.Equal(t, float64(3), testutil.ToFloat64(commandFinal.WithLabelValues("timeout")))
	assert.Equal(t, float64(4), testutil.ToFloat64(pendingTimers))
	assert.Equal(t, float64(1), testutil.ToFloat64(resultDropped.WithLabelValues("unknown")))
}

func TestQueryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	logger := log.New(io.Discard, "", 0)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	assert.Equal(t, float64(7), queryCount(db, logger, "SELECT COUNT(*) FROM control_command_logs"))

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("down"))
	assert.Equal(t, float64(0), queryCount(db, logger, "SELECT COUNT(*) FROM control_command_logs"))

	assert.Equal(t, float64(0), queryCount(nil, logger, "SELECT 1"))
}
