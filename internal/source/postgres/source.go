package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/nikolay-makurin/entityview/internal/config"
	"github.com/nikolay-makurin/entityview/internal/pipeline"
	"github.com/nikolay-makurin/entityview/internal/telemetry"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// Publisher receives the change messages of each committed transaction.
type Publisher interface {
	PushChangeMessagesToReplicationQueue(ctx context.Context, messages []types.ChangeMessage) error
}

// Source turns logical replication of the truth tables into change
// messages. Messages are published once per committed transaction, and the
// acknowledged WAL position only advances past published transactions.
type Source struct {
	cfg        config.TruthConfig
	conn       *pgconn.PgConn
	relations  map[uint32]*pglogrepl.RelationMessage
	typeMap    *pgtype.Map
	checkpoint *pipeline.CheckpointManager
	publisher  Publisher
	tables     map[string]types.ObjectType

	inTx      bool
	txChanges []types.ChangeMessage
	txLSNs    []types.LSN
	serverLSN types.LSN
}

func NewSource(cfg config.TruthConfig, cm *pipeline.CheckpointManager, pub Publisher) *Source {
	tables := make(map[string]types.ObjectType, len(cfg.Tables))
	for table, objectType := range cfg.Tables {
		tables[strings.ToLower(table)] = types.ObjectType(strings.ToUpper(objectType))
	}
	return &Source{
		cfg:        cfg,
		checkpoint: cm,
		publisher:  pub,
		tables:     tables,
		relations:  make(map[uint32]*pglogrepl.RelationMessage),
		typeMap:    pgtype.NewMap(),
	}
}

func (s *Source) Start(ctx context.Context) error {
	conn, err := pgconn.Connect(ctx, s.cfg.ConnectionString)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s.conn = conn
	defer conn.Close(context.WithoutCancel(ctx))

	sysident, err := pglogrepl.IdentifySystem(ctx, conn)
	if err != nil {
		return fmt.Errorf("IdentifySystem failed: %w", err)
	}
	slog.Info("System identified", "system_id", sysident.SystemID, "xlogpos", sysident.XLogPos)

	startLSN := sysident.XLogPos
	if safeLSN := s.checkpoint.GetSafeLSN(); safeLSN > 0 {
		startLSN = pglogrepl.LSN(safeLSN)
	}

	slog.Info("Starting capture", "slot", s.cfg.SlotName, "start_lsn", startLSN)
	err = pglogrepl.StartReplication(ctx, conn, s.cfg.SlotName, startLSN, pglogrepl.StartReplicationOptions{
		PluginArgs: []string{"proto_version '1'", "publication_names '" + s.cfg.Publication + "'"},
	})
	if err != nil {
		return fmt.Errorf("StartReplication failed: %w", err)
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sendStandbyStatus(ctx); err != nil {
				slog.Error("Failed to send heartbeat", "error", err)
			}
		default:
			ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
			msg, err := conn.ReceiveMessage(ctxTimeout)
			cancel()

			if err != nil {
				if pgconn.Timeout(err) {
					continue
				}
				return fmt.Errorf("ReceiveMessage failed: %w", err)
			}

			copyData, ok := msg.(*pgproto3.CopyData)
			if !ok {
				slog.Debug("Received unexpected message", "type", fmt.Sprintf("%T", msg))
				continue
			}
			switch copyData.Data[0] {
			case pglogrepl.PrimaryKeepaliveMessageByteID:
				pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(copyData.Data[1:])
				if err != nil {
					slog.Error("ParsePrimaryKeepaliveMessage failed", "error", err)
					continue
				}
				s.observeServer(types.LSN(pkm.ServerWALEnd))
				if pkm.ReplyRequested {
					if err := s.sendStandbyStatus(ctx); err != nil {
						slog.Error("Failed to reply to keepalive", "error", err)
					}
				}
			case pglogrepl.XLogDataByteID:
				xld, err := pglogrepl.ParseXLogData(copyData.Data[1:])
				if err != nil {
					slog.Error("ParseXLogData failed", "error", err)
					continue
				}
				s.observeServer(types.LSN(xld.ServerWALEnd))
				logicalMsg, err := pglogrepl.Parse(xld.WALData)
				if err != nil {
					slog.Error("Parse logical message failed", "error", err)
					continue
				}
				if err := s.handleLogicalMsg(ctx, types.LSN(xld.WALStart), logicalMsg); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Source) observeServer(lsn types.LSN) {
	if lsn > s.serverLSN {
		s.serverLSN = lsn
	}
	if safe := s.checkpoint.GetSafeLSN(); s.serverLSN > safe {
		telemetry.LagBytes.Set(float64(s.serverLSN - safe))
	} else {
		telemetry.LagBytes.Set(0)
	}
}

func (s *Source) sendStandbyStatus(ctx context.Context) error {
	safeLSN := pglogrepl.LSN(s.checkpoint.GetSafeLSN())
	return pglogrepl.SendStandbyStatusUpdate(ctx, s.conn, pglogrepl.StandbyStatusUpdate{
		WALWritePosition: safeLSN,
		WALFlushPosition: safeLSN,
		WALApplyPosition: safeLSN,
		ClientTime:       time.Now(),
	})
}

// handleLogicalMsg buffers row changes of the open transaction and
// publishes them on commit. Only a failed publish is returned as an error;
// rows that cannot be mapped are logged and skipped.
func (s *Source) handleLogicalMsg(ctx context.Context, lsn types.LSN, msg pglogrepl.Message) error {
	s.checkpoint.Track(lsn)
	s.txLSNs = append(s.txLSNs, lsn)

	switch m := msg.(type) {
	case *pglogrepl.RelationMessage:
		s.relations[m.RelationID] = m
	case *pglogrepl.BeginMessage:
		s.inTx = true
		s.txChanges = s.txChanges[:0]
	case *pglogrepl.InsertMessage:
		s.bufferChange(m.RelationID, m.Tuple, types.ChangeCreate)
	case *pglogrepl.UpdateMessage:
		s.bufferChange(m.RelationID, m.NewTuple, types.ChangeUpdate)
	case *pglogrepl.DeleteMessage:
		s.bufferChange(m.RelationID, m.OldTuple, types.ChangeDelete)
	case *pglogrepl.CommitMessage:
		end := types.LSN(m.TransactionEndLSN)
		s.checkpoint.Track(end)
		s.txLSNs = append(s.txLSNs, end)
		s.inTx = false
		return s.commit(ctx)
	}

	if !s.inTx {
		s.release()
	}
	return nil
}

func (s *Source) bufferChange(relationID uint32, tuple *pglogrepl.TupleData, changeType types.ChangeType) {
	rel, ok := s.relations[relationID]
	if !ok {
		slog.Error("Unknown relation", "relation_id", relationID)
		return
	}
	objectType, ok := s.tables[strings.ToLower(rel.RelationName)]
	if !ok {
		return
	}
	key, ok := keyColumn(rel)
	if !ok {
		slog.Error("Relation has no id column", "relation", rel.RelationName)
		return
	}
	vals, err := decodeTuple(tuple, rel, s.typeMap)
	if err != nil {
		slog.Error("Failed to decode tuple", "relation", rel.RelationName, "error", err)
		return
	}
	id, err := toInt64(vals[key])
	if err != nil {
		slog.Error("Failed to read object id", "relation", rel.RelationName, "error", err)
		return
	}
	s.txChanges = append(s.txChanges, types.ChangeMessage{
		ChangeType: changeType,
		ObjectType: objectType,
		ObjectID:   id,
		Timestamp:  time.Now(),
	})
}

func (s *Source) commit(ctx context.Context) error {
	if len(s.txChanges) > 0 {
		if err := s.publisher.PushChangeMessagesToReplicationQueue(ctx, s.txChanges); err != nil {
			return fmt.Errorf("failed to publish captured changes: %w", err)
		}
		slog.Debug("Published captured transaction", "changes", len(s.txChanges))
	}
	s.txChanges = s.txChanges[:0]
	s.release()
	return nil
}

func (s *Source) release() {
	for _, lsn := range s.txLSNs {
		s.checkpoint.MarkDone(lsn)
	}
	s.txLSNs = s.txLSNs[:0]
}
