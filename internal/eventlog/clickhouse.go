package eventlog

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseSink sends events using the official ClickHouse Go client,
// inserting the flattened Entry shape one row per event.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSink dials addr (host:port) and pings it before returning.
func NewClickHouseSink(addr, table string) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("eventlog: connect clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("eventlog: ping clickhouse: %w", err)
	}
	return &ClickHouseSink{conn: conn, table: table}, nil
}

func (s *ClickHouseSink) Close() error { return s.conn.Close() }

func (s *ClickHouseSink) Send(ctx context.Context, e Entry) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(kind, occurred_at, process_id, reason_kind, reason_err, reason_detail,
		 supervisor_id, child_id, attempt, watcher, watched, monitor_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		string(e.Kind), e.OccurredAt, e.ProcessID, e.ReasonKind, e.ReasonErr, e.ReasonDetail,
		e.SupervisorID, e.ChildID, e.Attempt, e.Watcher, e.Watched, e.MonitorID,
	)
	if err != nil {
		return fmt.Errorf("eventlog: insert into clickhouse: %w", err)
	}
	return nil
}
