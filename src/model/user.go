package model

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"

	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusExited    = "exited"

	AuthProviderLocal  = "local"
	AuthProviderGoogle = "google"
)

var ErrUserNotFound = errors.New("user not found")
var ErrSessionNotFound = errors.New("session not found, expired, or blocked")

type User struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	Password        string    `json:"-"`
	FullName        string    `json:"full_name"`
	StaffNumber     string    `json:"staff_number,omitempty"`
	Department      string    `json:"department,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Role            string    `json:"role"`
	Status          string    `json:"status"`
	JoinedAt        time.Time `json:"joined_at"`
	AuthProvider    string    `json:"auth_provider"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	EmailVerificationToken          string    `json:"-"`
	EmailVerificationTokenExpiresAt time.Time `json:"-"`
	PasswordResetToken              string    `json:"-"`
	PasswordResetTokenExpiresAt     time.Time `json:"-"`
}

type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserFilter narrows ListUsers. Empty fields match everything.
type UserFilter struct {
	Role   string
	Status string
	Search string
}

func (u *User) IsAdmin() bool  { return u.Role == RoleAdmin }
func (u *User) IsActive() bool { return u.Status == StatusActive }

// HashPassword hashes the user's password using bcrypt.
func (u *User) HashPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a given password with the user's hashed password.
func (u *User) CheckPassword(password string) error {
	if u.Password == "" {
		return errors.New("account has no local password")
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

// CreateUser inserts a new user into the database and sets u.ID.
func (u *User) CreateUser(db *sql.DB) error {
	now := time.Now().UTC()
	if u.Role == "" {
		u.Role = RoleMember
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	if u.AuthProvider == "" {
		u.AuthProvider = AuthProviderLocal
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = now
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `
	INSERT INTO users (username, password, email, full_name, staff_number, department, phone,
		role, status, joined_at, auth_provider, is_email_verified,
		email_verification_token, email_verification_token_expires_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(
		u.Username, u.Password, u.Email, u.FullName, u.StaffNumber, u.Department, u.Phone,
		u.Role, u.Status, u.JoinedAt, u.AuthProvider, u.IsEmailVerified,
		nullString(u.EmailVerificationToken), nullTime(u.EmailVerificationTokenExpiresAt),
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

const userColumns = `id, username, password, email, full_name, staff_number, department, phone,
	role, status, joined_at, auth_provider, is_email_verified,
	email_verification_token, email_verification_token_expires_at,
	password_reset_token, password_reset_token_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var joinedAt, verifyExpires, resetExpires, createdAt, updatedAt sql.NullTime
	var authProvider, verifyToken, resetToken sql.NullString
	var verified sql.NullBool
	err := row.Scan(
		&user.ID, &user.Username, &user.Password, &user.Email, &user.FullName, &user.StaffNumber,
		&user.Department, &user.Phone, &user.Role, &user.Status, &joinedAt, &authProvider, &verified,
		&verifyToken, &verifyExpires, &resetToken, &resetExpires, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.JoinedAt = joinedAt.Time
	user.AuthProvider = authProvider.String
	if user.AuthProvider == "" {
		user.AuthProvider = AuthProviderLocal
	}
	user.IsEmailVerified = verified.Bool
	user.EmailVerificationToken = verifyToken.String
	user.EmailVerificationTokenExpiresAt = verifyExpires.Time
	user.PasswordResetToken = resetToken.String
	user.PasswordResetTokenExpiresAt = resetExpires.Time
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	if user.JoinedAt.IsZero() {
		user.JoinedAt = user.CreatedAt
	}
	return &user, nil
}

func getUserBy(db *sql.DB, column string, value interface{}) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
}

// GetUserByID retrieves a user by primary key.
func GetUserByID(db *sql.DB, id int64) (*User, error) {
	return getUserBy(db, "id", id)
}

// GetUserByUsername retrieves a user from the database by their username.
func GetUserByUsername(db *sql.DB, username string) (*User, error) {
	return getUserBy(db, "username", username)
}

// GetUserByEmail looks up a user by email, case-insensitively.
func GetUserByEmail(db *sql.DB, email string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?)`, email))
}

func GetUserByStaffNumber(db *sql.DB, staffNumber string) (*User, error) {
	if strings.TrimSpace(staffNumber) == "" {
		return nil, ErrUserNotFound
	}
	return getUserBy(db, "staff_number", staffNumber)
}

func GetUserByVerificationToken(db *sql.DB, token string) (*User, error) {
	if token == "" {
		return nil, ErrUserNotFound
	}
	return getUserBy(db, "email_verification_token", token)
}

func GetUserByPasswordResetToken(db *sql.DB, token string) (*User, error) {
	if token == "" {
		return nil, ErrUserNotFound
	}
	return getUserBy(db, "password_reset_token", token)
}

// ListUsers returns users matching filter ordered by full name.
func ListUsers(db *sql.DB, filter UserFilter) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []interface{}
	if filter.Role != "" {
		query += ` AND role = ?`
		args = append(args, filter.Role)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query += ` AND (lower(full_name) LIKE ? OR lower(username) LIKE ? OR lower(staff_number) LIKE ? OR lower(email) LIKE ?)`
		args = append(args, like, like, like, like)
	}
	query += ` ORDER BY full_name ASC, id ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func execAffectingOne(db *sql.DB, query string, args ...interface{}) error {
	res, err := db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func UpdateUserStatus(db *sql.DB, id int64, status string) error {
	return execAffectingOne(db, `UPDATE users SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
}

func UpdateUserProfile(db *sql.DB, id int64, fullName, phone, department string) error {
	return execAffectingOne(db, `UPDATE users SET full_name = ?, phone = ?, department = ?, updated_at = ? WHERE id = ?`,
		fullName, phone, department, time.Now().UTC(), id)
}

func SetVerificationToken(db *sql.DB, id int64, token string, expiresAt time.Time) error {
	return execAffectingOne(db, `UPDATE users SET email_verification_token = ?, email_verification_token_expires_at = ?, updated_at = ? WHERE id = ?`,
		token, expiresAt, time.Now().UTC(), id)
}

func MarkEmailVerified(db *sql.DB, id int64) error {
	return execAffectingOne(db, `UPDATE users SET is_email_verified = TRUE, email_verification_token = NULL, email_verification_token_expires_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
}

func SetPasswordResetToken(db *sql.DB, id int64, token string, expiresAt time.Time) error {
	return execAffectingOne(db, `UPDATE users SET password_reset_token = ?, password_reset_token_expires_at = ?, updated_at = ? WHERE id = ?`,
		token, expiresAt, time.Now().UTC(), id)
}

// UpdatePassword stores a new password hash and clears any pending reset token.
func UpdatePassword(db *sql.DB, id int64, hashedPassword string) error {
	return execAffectingOne(db, `UPDATE users SET password = ?, password_reset_token = NULL, password_reset_token_expires_at = NULL, updated_at = ? WHERE id = ?`,
		hashedPassword, time.Now().UTC(), id)
}

// CreateSession inserts a new session into the database.
func CreateSession(db *sql.DB, session *Session) error {
	query := `
	INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	session.CreatedAt = time.Now().UTC()
	res, err := stmt.Exec(
		session.UserID,
		session.Token,
		session.RefreshToken,
		session.UserAgent,
		session.ClientIP,
		session.IsBlocked,
		session.ExpiresAt.UTC(),
		session.CreatedAt,
	)
	if err != nil {
		return err
	}
	session.ID, err = res.LastInsertId()
	return err
}

func getSessionBy(db *sql.DB, column, value string) (*Session, error) {
	row := db.QueryRow(`
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE `+column+` = ? AND is_blocked = FALSE`, value)

	var session Session
	var userAgent, clientIP sql.NullString
	var expiresAt, createdAt sql.NullTime
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&userAgent,
		&clientIP,
		&session.IsBlocked,
		&expiresAt,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	session.UserAgent = userAgent.String
	session.ClientIP = clientIP.String
	session.ExpiresAt = expiresAt.Time
	session.CreatedAt = createdAt.Time
	if !session.ExpiresAt.After(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// GetSessionByToken retrieves an active, non-blocked session by its access token.
func GetSessionByToken(db *sql.DB, token string) (*Session, error) {
	return getSessionBy(db, "token", token)
}

// GetSessionByRefreshToken retrieves an active, non-blocked session by its refresh token.
func GetSessionByRefreshToken(db *sql.DB, refreshToken string) (*Session, error) {
	return getSessionBy(db, "refresh_token", refreshToken)
}

// DeleteSessionByToken removes a session from the database based on the access token.
// Deleting an already-gone session is not an error.
func DeleteSessionByToken(db *sql.DB, token string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// DeleteSessionsForUser drops every session of a user, e.g. after a password reset or suspension.
func DeleteSessionsForUser(db *sql.DB, userID int64) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
