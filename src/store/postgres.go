package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

const shipmentViewQuery = `
	SELECT
		s.id, s.tracking_number, s.status,
		COALESCE(sc.name, '') AS sender_country,
		COALESCE(ss.name, '') AS sender_state,
		COALESCE(s.sender_address, ''), COALESCE(s.sender_city, ''), COALESCE(s.sender_zip, ''),
		COALESCE(rc.name, '') AS recipient_country,
		COALESCE(rs.name, '') AS recipient_state,
		COALESCE(s.recipient_address, ''), COALESCE(s.recipient_city, ''), COALESCE(s.recipient_zip, ''),
		COALESCE(s.service, ''), COALESCE(s.weight, 0), COALESCE(s.dimensions, ''),
		s.created_at, s.estimated_delivery
	FROM shipments s
		LEFT JOIN countries sc ON s.sender_country_id = sc.id
		LEFT JOIN states ss ON s.sender_state_id = ss.id
		LEFT JOIN countries rc ON s.recipient_country_id = rc.id
		LEFT JOIN states rs ON s.recipient_state_id = rs.id`

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Connect opens a pooled Postgres connection and verifies it.
func Connect(ctx context.Context, url string, logger zerolog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	logger = logger.With().Str("component", "store").Logger()
	logger.Info().Msg("database connected")
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ApplySchema creates the tables if they do not exist.
func (p *Postgres) ApplySchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	p.logger.Info().Msg("schema applied")
	return nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := p.pool.QueryRow(ctx,
		`SELECT id, email, password, role FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.Password, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (p *Postgres) CreateUser(ctx context.Context, email, passwordHash, role string) (User, error) {
	var u User
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (email, password, role) VALUES ($1, $2, $3) RETURNING id, email, role`,
		email, passwordHash, role,
	).Scan(&u.ID, &u.Email, &u.Role)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicateEmail
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (p *Postgres) ListShipments(ctx context.Context) ([]ShipmentView, error) {
	rows, err := p.pool.Query(ctx, shipmentViewQuery+` ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shipments := []ShipmentView{}
	for rows.Next() {
		v, err := scanShipmentView(rows)
		if err != nil {
			return nil, err
		}
		shipments = append(shipments, v)
	}
	return shipments, rows.Err()
}

func (p *Postgres) GetShipmentByID(ctx context.Context, id string) (ShipmentDetail, error) {
	var (
		d       ShipmentDetail
		weight  float64
		service string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT
			s.id, s.tracking_number, s.status,
			COALESCE(s.sender_name, ''), COALESCE(s.sender_email, ''), COALESCE(s.sender_phone, ''),
			COALESCE(s.sender_address, ''), COALESCE(s.sender_city, ''),
			COALESCE(ss.name, ''), COALESCE(s.sender_state_id, 0), COALESCE(s.sender_zip, ''),
			COALESCE(sc.name, ''), COALESCE(s.sender_country_id, 0),
			COALESCE(s.recipient_name, ''), COALESCE(s.recipient_email, ''), COALESCE(s.recipient_phone, ''),
			COALESCE(s.recipient_address, ''), COALESCE(s.recipient_city, ''),
			COALESCE(rs.name, ''), COALESCE(s.recipient_state_id, 0), COALESCE(s.recipient_zip, ''),
			COALESCE(rc.name, ''), COALESCE(s.recipient_country_id, 0),
			COALESCE(s.service, ''), COALESCE(s.weight, 0), COALESCE(s.dimensions, ''),
			s.created_at, s.estimated_delivery
		FROM shipments s
			LEFT JOIN countries sc ON s.sender_country_id = sc.id
			LEFT JOIN states ss ON s.sender_state_id = ss.id
			LEFT JOIN countries rc ON s.recipient_country_id = rc.id
			LEFT JOIN states rs ON s.recipient_state_id = rs.id
		WHERE s.id = $1`, id,
	).Scan(
		&d.ID, &d.TrackingNumber, &d.Status,
		&d.Sender.Name, &d.Sender.Email, &d.Sender.Phone,
		&d.Sender.Address, &d.Sender.City,
		&d.Sender.State, &d.Sender.StateID, &d.Sender.Zip,
		&d.Sender.Country, &d.Sender.CountryID,
		&d.Recipient.Name, &d.Recipient.Email, &d.Recipient.Phone,
		&d.Recipient.Address, &d.Recipient.City,
		&d.Recipient.State, &d.Recipient.StateID, &d.Recipient.Zip,
		&d.Recipient.Country, &d.Recipient.CountryID,
		&service, &weight, &d.Dimensions,
		&d.CreatedAt, &d.EstimatedDelivery,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ShipmentDetail{}, ErrNotFound
	}
	if err != nil {
		return ShipmentDetail{}, err
	}
	d.Service = service
	d.Weight = weight

	d.History, err = p.shipmentHistory(ctx, d.ID)
	if err != nil {
		return ShipmentDetail{}, err
	}
	return d, nil
}

func (p *Postgres) GetShipmentByTracking(ctx context.Context, trackingNumber string) (ShipmentView, error) {
	row := p.pool.QueryRow(ctx, shipmentViewQuery+` WHERE s.tracking_number = $1`, trackingNumber)
	v, err := scanShipmentView(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ShipmentView{}, ErrNotFound
	}
	if err != nil {
		return ShipmentView{}, err
	}

	v.History, err = p.shipmentHistory(ctx, v.ID)
	if err != nil {
		return ShipmentView{}, err
	}
	return v, nil
}

func (p *Postgres) CreateShipment(ctx context.Context, trackingNumber string, in ShipmentInput) (string, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO shipments (
			tracking_number, status, sender_name, sender_email, sender_phone,
			sender_address, sender_city, sender_state_id, sender_zip, sender_country_id,
			recipient_name, recipient_email, recipient_phone, recipient_address,
			recipient_city, recipient_state_id, recipient_zip, recipient_country_id,
			weight, dimensions, service, estimated_delivery
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id`,
		trackingNumber, "Processing", in.SenderName, in.SenderEmail, in.SenderPhone,
		in.SenderAddress, in.SenderCity, nullableID(in.SenderStateID), in.SenderZip, nullableID(in.SenderCountryID),
		in.RecipientName, in.RecipientEmail, in.RecipientPhone, in.RecipientAddress,
		in.RecipientCity, nullableID(in.RecipientStateID), in.RecipientZip, nullableID(in.RecipientCountryID),
		in.Weight, in.Dimensions, in.Service, in.EstimatedDelivery,
	).Scan(&id)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO shipment_history (shipment_id, status, location, description)
		VALUES ($1, $2, $3, $4)`,
		id, "Processing", "Origin Facility", "Shipment has been created and is being processed",
	)
	if err != nil {
		return "", err
	}

	return id, tx.Commit(ctx)
}

func (p *Postgres) UpdateShipment(ctx context.Context, id string, in ShipmentInput) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE shipments SET
			sender_name = $1, sender_email = $2, sender_phone = $3,
			sender_address = $4, sender_city = $5, sender_state_id = $6, sender_zip = $7, sender_country_id = $8,
			recipient_name = $9, recipient_email = $10, recipient_phone = $11,
			recipient_address = $12, recipient_city = $13, recipient_state_id = $14, recipient_zip = $15, recipient_country_id = $16,
			weight = $17, dimensions = $18, service = $19, estimated_delivery = $20
		WHERE id = $21`,
		in.SenderName, in.SenderEmail, in.SenderPhone,
		in.SenderAddress, in.SenderCity, nullableID(in.SenderStateID), in.SenderZip, nullableID(in.SenderCountryID),
		in.RecipientName, in.RecipientEmail, in.RecipientPhone,
		in.RecipientAddress, in.RecipientCity, nullableID(in.RecipientStateID), in.RecipientZip, nullableID(in.RecipientCountryID),
		in.Weight, in.Dimensions, in.Service, in.EstimatedDelivery, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteShipment(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateShipmentStatus(ctx context.Context, id, status, location, description string) (ShipmentView, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return ShipmentView{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE shipments SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return ShipmentView{}, err
	}
	if tag.RowsAffected() == 0 {
		return ShipmentView{}, ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO shipment_history (shipment_id, status, location, description)
		VALUES ($1, $2, $3, $4)`,
		id, status, location, description,
	)
	if err != nil {
		return ShipmentView{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ShipmentView{}, err
	}

	// Read back the committed view for the caller to broadcast.
	row := p.pool.QueryRow(ctx, shipmentViewQuery+` WHERE s.id = $1`, id)
	v, err := scanShipmentView(row)
	if err != nil {
		return ShipmentView{}, err
	}
	v.History, err = p.shipmentHistory(ctx, id)
	if err != nil {
		return ShipmentView{}, err
	}
	return v, nil
}

func (p *Postgres) ListCountries(ctx context.Context) ([]Country, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, code FROM countries ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	countries := []Country{}
	for rows.Next() {
		var c Country
		if err := rows.Scan(&c.ID, &c.Name, &c.Code); err != nil {
			return nil, err
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

func (p *Postgres) ListStates(ctx context.Context) ([]State, error) {
	return p.queryStates(ctx, `
		SELECT s.id, s.name, s.code, s.country_id, c.name AS country_name
		FROM states s
			JOIN countries c ON s.country_id = c.id
		ORDER BY s.name`)
}

func (p *Postgres) ListStatesByCountry(ctx context.Context, countryID int) ([]State, error) {
	return p.queryStates(ctx, `
		SELECT s.id, s.name, s.code, s.country_id, c.name AS country_name
		FROM states s
			JOIN countries c ON s.country_id = c.id
		WHERE s.country_id = $1
		ORDER BY s.name`, countryID)
}

func (p *Postgres) queryStates(ctx context.Context, query string, args ...any) ([]State, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := []State{}
	for rows.Next() {
		var s State
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.CountryID, &s.CountryName); err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

func (p *Postgres) shipmentHistory(ctx context.Context, shipmentID string) ([]HistoryEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, created_at, status, COALESCE(location, ''), COALESCE(description, '')
		FROM shipment_history
		WHERE shipment_id = $1
		ORDER BY created_at DESC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.Status, &e.Location, &e.Description); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

func scanShipmentView(row pgx.Row) (ShipmentView, error) {
	var (
		v            ShipmentView
		senderAddr   [3]string
		receiverAddr [3]string
	)
	err := row.Scan(
		&v.ID, &v.TrackingNumber, &v.Status,
		&v.Origin.Country, &v.Origin.State,
		&senderAddr[0], &senderAddr[1], &senderAddr[2],
		&v.Destination.Country, &v.Destination.State,
		&receiverAddr[0], &receiverAddr[1], &receiverAddr[2],
		&v.Service, &v.Weight, &v.Dimensions,
		&v.CreatedAt, &v.EstimatedDelivery,
	)
	if err != nil {
		return ShipmentView{}, err
	}
	v.Origin.Address = fmt.Sprintf("%s, %s, %s", senderAddr[0], senderAddr[1], senderAddr[2])
	v.Destination.Address = fmt.Sprintf("%s, %s, %s", receiverAddr[0], receiverAddr[1], receiverAddr[2])
	return v, nil
}

// nullableID converts a zero-value reference id into NULL so optional
// foreign keys stay unset instead of violating constraints.
func nullableID(id int) any {
	if id == 0 {
		return nil
	}
	return id
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
