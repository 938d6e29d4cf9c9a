package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BICAS-web3/Backend/internal/model"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	listNetworksSQL = `SELECT n.id, n.name, c.name, c.symbol, c.decimals
    FROM networks n
    JOIN native_currencies c ON c.id = n.native_currency_id
    ORDER BY n.id;`

	listRPCEndpointsSQL = `SELECT id, network_id, url
    FROM rpc_urls
    WHERE network_id = $1
    ORDER BY id;`

	listGamesSQL = `SELECT id, network_id, name, address, event_signature, event_types, event_names
    FROM games
    WHERE network_id = $1
    ORDER BY id;`

	listTokensSQL = `SELECT id, network_id, name, icon, contract_address
    FROM tokens
    WHERE network_id = $1
    ORDER BY id;`

	listPriceSourceTokensSQL = `SELECT DISTINCT ON (name) id, network_id, name, icon, contract_address
    FROM tokens
    WHERE network_id = $1
    ORDER BY name, id;`

	tokenByAddressSQL = `SELECT id, network_id, name, icon, contract_address
    FROM tokens
    WHERE lower(contract_address) = lower($1)
    LIMIT 1;`

	nicknameByAddressSQL = `SELECT id, address, nickname
    FROM nicknames
    WHERE lower(address) = lower($1)
    LIMIT 1;`

	setNicknameSQL = `INSERT INTO nicknames (address, nickname)
    VALUES ($1, $2)
    ON CONFLICT (address) DO UPDATE SET nickname = EXCLUDED.nickname;`

	getCheckpointSQL = `SELECT last_block
    FROM checkpoints
    WHERE network_id = $1;`

	setCheckpointSQL = `INSERT INTO checkpoints (network_id, last_block, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (network_id) DO UPDATE
    SET last_block = EXCLUDED.last_block,
        updated_at = EXCLUDED.updated_at;`

	placeBetSQL = `INSERT INTO bets (
        transaction_hash,
        player,
        timestamp,
        game_id,
        wager,
        token_address,
        network_id,
        bets,
        multiplier,
        profit
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (transaction_hash) DO UPDATE
    SET bets       = EXCLUDED.bets,
        multiplier = EXCLUDED.multiplier,
        profit     = EXCLUDED.profit;`

	setTokenPriceSQL = `INSERT INTO token_prices (token_name, price)
    VALUES ($1, $2)
    ON CONFLICT (token_name) DO UPDATE SET price = EXCLUDED.price;`

	betDetailColumns = `b.transaction_hash,
        b.player,
        nk.nickname,
        b.timestamp,
        b.game_id,
        g.name,
        b.wager,
        b.token_address,
        COALESCE(t.name, ''),
        b.network_id,
        n.name,
        b.bets,
        b.multiplier,
        b.profit`

	betDetailJoins = `FROM bets b
    JOIN games g ON g.id = b.game_id
    JOIN networks n ON n.id = b.network_id
    LEFT JOIN tokens t ON lower(t.contract_address) = lower(b.token_address)
    LEFT JOIN nicknames nk ON lower(nk.address) = lower(b.player)`

	recentBetsSQL = `SELECT ` + betDetailColumns + `
    ` + betDetailJoins + `
    ORDER BY b.timestamp DESC
    LIMIT $1;`

	betsForPlayerSQL = `SELECT ` + betDetailColumns + `
    ` + betDetailJoins + `
    WHERE lower(b.player) = lower($1)
    ORDER BY b.timestamp DESC
    LIMIT $2;`

	betsForGameSQL = `SELECT ` + betDetailColumns + `
    ` + betDetailJoins + `
    WHERE g.name = $1
    ORDER BY b.timestamp DESC
    LIMIT $2;`

	betsBetweenSQL = `SELECT ` + betDetailColumns + `
    ` + betDetailJoins + `
    WHERE b.timestamp >= $1 AND b.timestamp < $2
    ORDER BY b.timestamp;`
)

// Store is the pgx-backed repository for every table the pipeline touches.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListNetworks returns every configured network.
func (s *Store) ListNetworks(ctx context.Context) ([]model.Network, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listNetworksSQL)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	defer rows.Close()

	var networks []model.Network
	for rows.Next() {
		var n model.Network
		if err := rows.Scan(&n.ID, &n.Name, &n.CurrencyName, &n.CurrencySymbol, &n.Decimals); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		networks = append(networks, n)
	}
	return networks, rows.Err()
}

// ListRPCEndpoints returns the RPC URLs configured for a network.
func (s *Store) ListRPCEndpoints(ctx context.Context, networkID int64) ([]model.RPCEndpoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRPCEndpointsSQL, networkID)
	if err != nil {
		return nil, fmt.Errorf("list rpc endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []model.RPCEndpoint
	for rows.Next() {
		var e model.RPCEndpoint
		if err := rows.Scan(&e.ID, &e.NetworkID, &e.URL); err != nil {
			return nil, fmt.Errorf("scan rpc endpoint: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

// ListGames returns the game descriptors for a network, decoding schemas
// included.
func (s *Store) ListGames(ctx context.Context, networkID int64) ([]model.Game, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listGamesSQL, networkID)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.ID, &g.NetworkID, &g.Name, &g.Address, &g.EventSignature, &g.EventTypes, &g.EventNames); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// ListTokens returns the wager tokens configured for a network.
func (s *Store) ListTokens(ctx context.Context, networkID int64) ([]model.Token, error) {
	return s.listTokens(ctx, listTokensSQL, networkID)
}

// ListPriceSourceTokens returns one token per distinct name on the price
// source network, the set the oracle samples.
func (s *Store) ListPriceSourceTokens(ctx context.Context, networkID int64) ([]model.Token, error) {
	return s.listTokens(ctx, listPriceSourceTokensSQL, networkID)
}

func (s *Store) listTokens(ctx context.Context, sql string, networkID int64) ([]model.Token, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, sql, networkID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		var t model.Token
		if err := rows.Scan(&t.ID, &t.NetworkID, &t.Name, &t.Icon, &t.ContractAddress); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// TokenByAddress resolves a token by contract address. A missing token is
// (nil, nil), not an error.
func (s *Store) TokenByAddress(ctx context.Context, address string) (*model.Token, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var t model.Token
	err = pool.QueryRow(ctx, tokenByAddressSQL, address).
		Scan(&t.ID, &t.NetworkID, &t.Name, &t.Icon, &t.ContractAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return &t, nil
}

// NicknameByAddress resolves a player's chosen nickname. A missing nickname
// is (nil, nil), not an error.
func (s *Store) NicknameByAddress(ctx context.Context, address string) (*model.Nickname, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var n model.Nickname
	err = pool.QueryRow(ctx, nicknameByAddressSQL, address).
		Scan(&n.ID, &n.Address, &n.Nickname)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup nickname: %w", err)
	}
	return &n, nil
}

// SetNickname upserts a player's nickname.
func (s *Store) SetNickname(ctx context.Context, address, nickname string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, setNicknameSQL, address, nickname); err != nil {
		return fmt.Errorf("set nickname: %w", err)
	}
	return nil
}

// GetCheckpoint returns a network's last processed block, with ok=false when
// no checkpoint has been persisted yet.
func (s *Store) GetCheckpoint(ctx context.Context, networkID int64) (uint64, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, false, err
	}

	var last int64
	err = pool.QueryRow(ctx, getCheckpointSQL, networkID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint: %w", err)
	}
	return uint64(last), true, nil
}

// SetCheckpoint records a network's last processed block.
func (s *Store) SetCheckpoint(ctx context.Context, networkID int64, block uint64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, setCheckpointSQL, networkID, int64(block)); err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

// PlaceBet upserts a bet keyed by transaction hash, so at-least-once
// redelivery from the watchers stays idempotent.
func (s *Store) PlaceBet(ctx context.Context, bet model.Bet) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, placeBetSQL,
		bet.TransactionHash,
		bet.Player,
		bet.Timestamp,
		bet.GameID,
		bet.Wager,
		bet.TokenAddress,
		bet.NetworkID,
		bet.Bets,
		bet.Multiplier,
		bet.Profit,
	)
	if err != nil {
		return fmt.Errorf("place bet: %w", err)
	}
	return nil
}

// SetTokenPrice overwrites a token's last-known reference price.
func (s *Store) SetTokenPrice(ctx context.Context, tokenName string, price float64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, setTokenPriceSQL, tokenName, price); err != nil {
		return fmt.Errorf("set token price: %w", err)
	}
	return nil
}

// RecentBets returns the newest bets with their display names resolved.
func (s *Store) RecentBets(ctx context.Context, limit int) ([]model.BetDetail, error) {
	return s.queryBetDetails(ctx, recentBetsSQL, limit)
}

// BetsForPlayer returns a player's newest bets.
func (s *Store) BetsForPlayer(ctx context.Context, address string, limit int) ([]model.BetDetail, error) {
	return s.queryBetDetails(ctx, betsForPlayerSQL, address, limit)
}

// BetsForGame returns a game's newest bets by game name.
func (s *Store) BetsForGame(ctx context.Context, gameName string, limit int) ([]model.BetDetail, error) {
	return s.queryBetDetails(ctx, betsForGameSQL, gameName, limit)
}

// BetsBetween returns bets inside [from, to) in chronological order.
func (s *Store) BetsBetween(ctx context.Context, from, to time.Time) ([]model.BetDetail, error) {
	return s.queryBetDetails(ctx, betsBetweenSQL, from, to)
}

func (s *Store) queryBetDetails(ctx context.Context, sql string, args ...any) ([]model.BetDetail, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query bets: %w", err)
	}
	defer rows.Close()

	var bets []model.BetDetail
	for rows.Next() {
		var b model.BetDetail
		if err := rows.Scan(
			&b.TransactionHash,
			&b.Player,
			&b.PlayerNickname,
			&b.Timestamp,
			&b.GameID,
			&b.GameName,
			&b.Wager,
			&b.TokenAddress,
			&b.TokenName,
			&b.NetworkID,
			&b.NetworkName,
			&b.Bets,
			&b.Multiplier,
			&b.Profit,
		); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}
