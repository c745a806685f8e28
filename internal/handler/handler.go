package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"absensi/internal/attendance"
	"absensi/internal/auth"
	"absensi/internal/user"
	"absensi/internal/verify"
)

// UserStore is the user persistence surface the handlers need.
type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	List(ctx context.Context) ([]user.Public, error)
	Delete(ctx context.Context, id string) error
}

// Attendance is the scan surface the handlers need.
type Attendance interface {
	Scan(ctx context.Context, uid string) (attendance.Result, error)
	ListForUser(ctx context.Context, userID string) ([]attendance.Entry, error)
}

// Handler carries the HTTP endpoints.
type Handler struct {
	users    UserStore
	att      Attendance
	sessions verify.Sessions

	jwtKey    string
	jwtIssuer string
	tokenTTL  time.Duration
}

// New creates a handler.
func New(users UserStore, att Attendance, sessions verify.Sessions, jwtKey, jwtIssuer string, tokenTTL time.Duration) *Handler {
	return &Handler{
		users:     users,
		att:       att,
		sessions:  sessions,
		jwtKey:    jwtKey,
		jwtIssuer: jwtIssuer,
		tokenTTL:  tokenTTL,
	}
}

// Register wires the API routes onto r.
func (h *Handler) Register(r *gin.Engine) {
	bearer := auth.Bearer(h.jwtKey, h.jwtIssuer)

	api := r.Group("/api")
	{
		api.POST("/login", h.Login)

		api.GET("/user/face", bearer, h.GetFace)
		api.POST("/verify-face", bearer, h.VerifyFace)
		api.GET("/user/attendance", bearer, h.MyAttendance)

		admin := api.Group("/admin", bearer, auth.RequireRole(user.RoleAdmin))
		{
			admin.POST("/enroll", h.Enroll)
			admin.GET("/users", h.ListUsers)
			admin.DELETE("/users/:id", h.DeleteUser)
		}
	}

	// Device endpoint for the RFID reader; no bearer token, the device sends
	// only the scanned uid.
	r.POST("/absen", h.Absen)
}

// ---------- Auth ----------

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials and issues an 8-hour bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	u, err := h.users.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Unknown usernames still pay for one bcrypt comparison.
			auth.BurnCompare(req.Password)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, _, err := auth.Issue(u.ID, u.Role, h.jwtIssuer, h.jwtKey, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "role": u.Role, "userId": u.ID})
}

// ---------- Face verification ----------

// GetFace returns the caller's stored face descriptor for the external
// matching client. The comparison itself never happens server-side.
func (h *Handler) GetFace(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	u, err := h.users.GetByID(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no face data"})
		return
	}
	if len(u.FaceDescriptor) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no face data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"descriptor": u.FaceDescriptor})
}

// VerifyFace marks the caller as face-verified for the configured window.
func (h *Handler) VerifyFace(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	if err := h.sessions.Mark(c.Request.Context(), claims.Subject); err != nil {
		log.Printf("mark verification for %s failed: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Verifikasi wajah berhasil"})
}

// ---------- Admin ----------

type enrollRequest struct {
	Name           string    `json:"name"`
	Username       string    `json:"username"`
	Password       string    `json:"password"`
	RFIDTag        string    `json:"rfidTag"`
	FaceDescriptor []float64 `json:"faceDescriptor"`
}

// Enroll creates a user record with a hashed password, normalized RFID tag,
// and the supplied face descriptor.
func (h *Handler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Name == "" || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, username and password are required"})
		return
	}
	if len(req.FaceDescriptor) != user.DescriptorLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": user.ErrBadDescriptor.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	u := user.User{
		Name:           req.Name,
		Username:       req.Username,
		PasswordHash:   hash,
		FaceDescriptor: req.FaceDescriptor,
		Role:           user.RoleUser,
	}
	if req.RFIDTag != "" {
		tag := req.RFIDTag
		u.RFIDTag = &tag
	}

	if _, err := h.users.Create(c.Request.Context(), u); err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateUsername):
			c.JSON(http.StatusBadRequest, gin.H{"error": "username already taken"})
		case errors.Is(err, user.ErrDuplicateRFID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "rfid tag already assigned"})
		case errors.Is(err, user.ErrBadDescriptor):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("enroll failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enroll failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"msg": "Pendaftaran berhasil"})
}

// ListUsers returns all users without password hashes or descriptors.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	if users == nil {
		users = []user.Public{}
	}
	c.JSON(http.StatusOK, users)
}

// DeleteUser permanently removes a non-admin user.
func (h *Handler) DeleteUser(c *gin.Context) {
	err := h.users.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"msg": "Pengguna dihapus"})
	case errors.Is(err, user.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, user.ErrProtectedRole):
		c.JSON(http.StatusForbidden, gin.H{"error": "admin accounts cannot be deleted"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
	}
}

// ---------- Attendance ----------

// MyAttendance returns the caller's attendance history.
func (h *Handler) MyAttendance(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	if _, err := h.users.GetByID(c.Request.Context(), claims.Subject); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	entries, err := h.att.ListForUser(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list attendance failed"})
		return
	}
	if entries == nil {
		entries = []attendance.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"attendance": entries})
}

type absenRequest struct {
	UID string `json:"uid" binding:"required"`
}

// Absen processes an RFID scan from the reader device.
func (h *Handler) Absen(c *gin.Context) {
	var req absenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "uid wajib diisi"})
		return
	}

	res, err := h.att.Scan(c.Request.Context(), req.UID)
	switch {
	case err == nil:
	case errors.Is(err, attendance.ErrUnknownTag):
		c.JSON(http.StatusNotFound, gin.H{"msg": "Kartu tidak terdaftar"})
		return
	case errors.Is(err, attendance.ErrFaceNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"msg": "Verifikasi wajah diperlukan sebelum absen"})
		return
	case errors.Is(err, attendance.ErrAlreadyComplete):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Sudah absen masuk & keluar hari ini"})
		return
	default:
		log.Printf("scan failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Terjadi kesalahan server"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"msg": res.Event + " berhasil", "name": res.User.Name})
}
