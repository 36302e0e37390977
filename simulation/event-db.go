package simulation

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"diffusion-sim/model"
)

// EventKind tells how a piece reached a user
type EventKind string

const (
	ReceiveEvent   EventKind = "Receive"
	RereceiveEvent EventKind = "Rereceive"
	PropagateEvent EventKind = "Propagate"
)

// Event is one row of the event database. Sender is -1 for propagations.
type Event struct {
	Kind      EventKind
	Iteration int
	User      int
	Piece     int
	Sender    int
}

type EventDB struct {
	db *sql.DB
}

// OpenEventDB opens or creates the database file
func OpenEventDB(filename string) (*EventDB, error) {
	db, err := sql.Open("sqlite3", filename+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			piece_id INTEGER NOT NULL,
			step INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS delivery_events (
			event_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create delivery_events table: %w", err)
	}

	_, err = db.Exec("CREATE INDEX IF NOT EXISTS events_step ON events(step)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &EventDB{db: db}, nil
}

func (edb *EventDB) Close() error {
	return edb.db.Close()
}

// Observe stores every event of the iteration in one transaction
func (edb *EventDB) Observe(it *model.Iteration) (err error) {
	tx, err := edb.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	insert := func(kind EventKind, user, piece int) (int64, error) {
		result, err := tx.Exec(
			"INSERT INTO events (type, user_id, piece_id, step) VALUES (?, ?, ?, ?)",
			string(kind), user, piece, it.Number,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert event: %w", err)
		}
		return result.LastInsertId()
	}

	for _, u := range it.PropagatingUsers() {
		for _, p := range it.Propagated[u] {
			if _, err = insert(PropagateEvent, u, p); err != nil {
				return err
			}
		}
	}

	deliveries := func(kind EventKind, users []int, group map[int][]model.Delivery) error {
		for _, u := range users {
			for _, d := range group[u] {
				id, err := insert(kind, u, d.Piece)
				if err != nil {
					return err
				}
				for _, sender := range d.Senders {
					_, err = tx.Exec(
						"INSERT INTO delivery_events (event_id, sender_id) VALUES (?, ?)",
						id, sender,
					)
					if err != nil {
						return fmt.Errorf("failed to insert delivery event: %w", err)
					}
				}
			}
		}
		return nil
	}
	if err = deliveries(ReceiveEvent, it.ReceivingUsers(), it.Received); err != nil {
		return err
	}
	if err = deliveries(RereceiveEvent, it.RereceivingUsers(), it.Rereceived); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteEventsAfterStep removes every event of iterations >= step
func (edb *EventDB) DeleteEventsAfterStep(step int) error {
	_, err := edb.db.Exec("DELETE FROM delivery_events WHERE event_id IN (SELECT id FROM events WHERE step >= ?)", step)
	if err != nil {
		return fmt.Errorf("failed to delete delivery events: %w", err)
	}
	_, err = edb.db.Exec("DELETE FROM events WHERE step >= ?", step)
	if err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

// GetEvents returns every event ordered by iteration, with one entry per
// sender for deliveries
func (edb *EventDB) GetEvents() ([]Event, error) {
	rows, err := edb.db.Query(`
		SELECT e.type, e.step, e.user_id, e.piece_id, COALESCE(d.sender_id, -1)
		FROM events e LEFT JOIN delivery_events d ON d.event_id = e.id
		ORDER BY e.step ASC, e.id ASC, d.sender_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&kind, &e.Iteration, &e.User, &e.Piece, &e.Sender); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = EventKind(kind)
		events = append(events, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// CountEvents returns the number of events of the kind up to the given iteration
func (edb *EventDB) CountEvents(kind EventKind, upTo int) (int, error) {
	var n int
	err := edb.db.QueryRow(
		"SELECT COUNT(*) FROM events WHERE type = ? AND step <= ?", string(kind), upTo,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
