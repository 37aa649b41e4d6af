package ledger

import (
	"context"
	"time"
)

func (s *Store) CreateAuthentication(ctx context.Context, a Authentication) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO authentications (
			id, session_id, card_token_id, minor_amount, currency_code,
			result, server_transaction_id, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.CardTokenID, a.MinorAmount, a.CurrencyCode,
		a.Result, a.ServerTransactionID, a.ErrorMessage, toMillis(a.CreatedAt),
	)
	return mapConflict(err)
}

// UpdateAuthenticationResult rewrites the verdict once a challenge settles.
func (s *Store) UpdateAuthenticationResult(ctx context.Context, serverTransactionID, result string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE authentications SET result = ? WHERE server_transaction_id = ?`,
		result, serverTransactionID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestAuthentication returns the newest authentication of a session.
func (s *Store) LatestAuthentication(ctx context.Context, sessionID string) (Authentication, error) {
	var (
		a       Authentication
		created int64
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, session_id, card_token_id, minor_amount, currency_code,
		       result, server_transaction_id, error_message, created_at
		FROM authentications
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, sessionID,
	).Scan(
		&a.ID, &a.SessionID, &a.CardTokenID, &a.MinorAmount, &a.CurrencyCode,
		&a.Result, &a.ServerTransactionID, &a.ErrorMessage, &created,
	)
	if err != nil {
		return Authentication{}, mapNotFound(err)
	}
	a.CreatedAt = fromMillis(created)
	return a, nil
}

// CreatePayment records p. A reused idempotency token fails with
// ErrAlreadyExists.
func (s *Store) CreatePayment(ctx context.Context, p Payment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (
			id, session_id, token_id, idempotency_token, minor_amount,
			currency_code, result, auth_code, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.TokenID, p.IdempotencyToken, p.MinorAmount,
		p.CurrencyCode, p.Result, p.AuthCode, p.Message, toMillis(p.CreatedAt),
	)
	return mapConflict(err)
}

func (s *Store) PaymentByIdempotencyToken(ctx context.Context, token string) (Payment, error) {
	var (
		p       Payment
		created int64
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, session_id, token_id, idempotency_token, minor_amount,
		       currency_code, result, auth_code, message, created_at
		FROM payments
		WHERE idempotency_token = ?`, token,
	).Scan(
		&p.ID, &p.SessionID, &p.TokenID, &p.IdempotencyToken, &p.MinorAmount,
		&p.CurrencyCode, &p.Result, &p.AuthCode, &p.Message, &created,
	)
	if err != nil {
		return Payment{}, mapNotFound(err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

// ListPayments returns a session's payments, oldest first.
func (s *Store) ListPayments(ctx context.Context, sessionID string) ([]Payment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, session_id, token_id, idempotency_token, minor_amount,
		       currency_code, result, auth_code, message, created_at
		FROM payments
		WHERE session_id = ?
		ORDER BY created_at, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var (
			p       Payment
			created int64
		)
		if err := rows.Scan(
			&p.ID, &p.SessionID, &p.TokenID, &p.IdempotencyToken, &p.MinorAmount,
			&p.CurrencyCode, &p.Result, &p.AuthCode, &p.Message, &created,
		); err != nil {
			return nil, err
		}
		p.CreatedAt = fromMillis(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteBefore removes records older than cutoff and returns how many went.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"authentications", "payments"} {
		res, err := s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, toMillis(cutoff))
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
