// Package api управляющий HTTP API уровня: фокусы, статистика, состояние чанков
// и поток активаций по websocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/voxel-stream/internal/auth"
	"github.com/annel0/voxel-stream/internal/logging"
	"github.com/annel0/voxel-stream/internal/middleware"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/world"
	"github.com/annel0/voxel-stream/internal/world/aperture"
	"github.com/annel0/voxel-stream/internal/world/chunk"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Config содержит конфигурацию управляющего сервера
type Config struct {
	Addr        string               // адрес для запуска сервера, ":8088"
	ServiceName string               // имя сервиса для otelgin и метрик
	Level       *world.Level         // управляемый уровень
	Signer      *auth.Signer         // проверка токенов
	Operators   *auth.OperatorStore  // учетные записи для входа
	Logger      *logging.Logger
	Registry    *prometheus.Registry // nil = регистр по умолчанию
}

// Server управляющий REST API
type Server struct {
	router    *gin.Engine
	http      *http.Server
	level     *world.Level
	signer    *auth.Signer
	operators *auth.OperatorStore
	logger    *logging.Logger
	metrics   *ServerMetrics
	hub       *Hub
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// LoginRequest запрос на вход оператора
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// FocusRequest координата чанка для появления и перемещения фокуса
type FocusRequest struct {
	X *int `json:"x" binding:"required"`
	Y *int `json:"y" binding:"required"`
	Z *int `json:"z" binding:"required"`
}

func (r FocusRequest) loc() vec.Vec3 {
	return vec.New(*r.X, *r.Y, *r.Z)
}

// FocusInfo фокус в ответах API
type FocusInfo struct {
	ID       int      `json:"id"`
	Location vec.Vec3 `json:"location"`
	Active   bool     `json:"active"`
}

// ChunkInfo состояние чанка
type ChunkInfo struct {
	Location vec.Vec3 `json:"location"`
	InLevel  bool     `json:"in_level"`
	Loaded   bool     `json:"loaded"`
	Empty    bool     `json:"empty"`
	Full     bool     `json:"full"`
	Meshed   bool     `json:"meshed"`
	Active   bool     `json:"active"`
}

// ProcessingResponse очереди уровня разрешения
type ProcessingResponse struct {
	Layer   string     `json:"layer"`
	Queued  []vec.Vec3 `json:"queued"`
	Running []vec.Vec3 `json:"running"`
}

// StatsResponse ответ /api/stats
type StatsResponse struct {
	Level   world.LevelStats `json:"level"`
	Process ProcessStats     `json:"process"`
	Clients int              `json:"ws_clients"`
}

// NewServer создает сервер. Без Level возвращает ошибку.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Level == nil {
		return nil, fmt.Errorf("%w: уровень для управляющего API", world.ErrMissingDependency)
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("%w: подписчик токенов", world.ErrMissingDependency)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voxel-stream"
	}
	if cfg.Operators == nil {
		cfg.Operators = auth.NewOperatorStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	var (
		reg      prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if cfg.Registry != nil {
		reg, gatherer = cfg.Registry, cfg.Registry
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()        // без стандартного logger
	router.Use(gin.Recovery()) // добавим только recovery

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.NewRequestLogger(cfg.Logger).Handler())
	promMw := middleware.NewPrometheusMiddleware("control_api", reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	s := &Server{
		router:    router,
		level:     cfg.Level,
		signer:    cfg.Signer,
		operators: cfg.Operators,
		logger:    cfg.Logger,
		metrics:   NewServerMetrics(),
		hub:       NewHub(cfg.Logger),
	}
	s.metrics.Register(reg)
	s.hub.Attach(cfg.Level.Events())

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes настраивает маршруты
func (s *Server) setupRoutes() {
	s.router.Use(corsMiddleware())

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws/chunks", s.hub.Handler())

	api := s.router.Group("/api")
	api.POST("/auth/login", s.handleLogin)
	api.GET("/stats", s.handleStats)
	api.GET("/foci", s.handleListFoci)
	api.GET("/chunks/processing", s.handleProcessing)
	api.GET("/chunks/:x/:y/:z", s.handleChunk)

	// Изменяющие эндпоинты требуют JWT
	protected := api.Group("/")
	protected.Use(s.jwtMiddleware())
	{
		protected.POST("/foci", s.handleSpawnFocus)
		protected.PUT("/foci/:id", s.handleMoveFocus)
		protected.DELETE("/foci/:id", s.handleRemoveFocus)
	}
}

// Handler http.Handler сервера, для тестов и встраивания
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub поток активаций
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run запускает сервер и блокируется до отмены ctx
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 Управляющий API слушает %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки HTTP сервера: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}

	op, err := s.operators.Authenticate(req.Username, req.Password)
	if err != nil {
		s.logger.Warn("🔒 Неудачный вход оператора %q", req.Username)
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверное имя пользователя или пароль"})
		return
	}

	token, err := s.signer.Generate(op)
	if err != nil {
		s.logger.Error("❌ Ошибка выпуска токена: %v", err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Внутренняя ошибка сервера"})
		return
	}

	s.logger.Info("🔑 Оператор %s вошел", op.Username)
	c.JSON(http.StatusOK, LoginResponse{Success: true, Token: token, Message: "Вход выполнен"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		Level:   s.level.Stats(),
		Process: s.metrics.Snapshot(),
		Clients: s.hub.Clients(),
	})
}

func focusInfo(f *world.Focus) FocusInfo {
	return FocusInfo{ID: f.ID(), Location: f.ChunkLocation(), Active: f.IsActive()}
}

func (s *Server) handleListFoci(c *gin.Context) {
	foci := make([]FocusInfo, 0, s.level.FocusCount())
	s.level.ForEachFocus(func(f *world.Focus) {
		foci = append(foci, focusInfo(f))
	})
	c.JSON(http.StatusOK, foci)
}

func (s *Server) bindFocus(c *gin.Context) (vec.Vec3, bool) {
	var req FocusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Ожидаются координаты x, y, z"})
		return vec.Vec3{}, false
	}
	loc := req.loc()
	if !loc.IsWithinBounds(s.level.Bounds()) {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: fmt.Sprintf("Координата %v вне уровня %v", loc, s.level.Bounds())})
		return vec.Vec3{}, false
	}
	return loc, true
}

func (s *Server) focusByParam(c *gin.Context) (*world.Focus, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "ID фокуса должен быть числом"})
		return nil, false
	}
	f, ok := s.level.GetFocusByID(id)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{Message: fmt.Sprintf("Фокус %d не найден", id)})
		return nil, false
	}
	return f, true
}

func (s *Server) handleSpawnFocus(c *gin.Context) {
	loc, ok := s.bindFocus(c)
	if !ok {
		return
	}

	f := world.NewFocus(loc)
	id, err := s.level.SpawnFocus(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{Message: err.Error()})
		return
	}
	s.logger.Info("🎯 Оператор %v создал фокус %d в %v", c.GetString(ctxOperator), id, loc)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleMoveFocus(c *gin.Context) {
	f, ok := s.focusByParam(c)
	if !ok {
		return
	}
	loc, ok := s.bindFocus(c)
	if !ok {
		return
	}

	if err := s.level.MoveFocus(f, loc); err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, focusInfo(f))
}

func (s *Server) handleRemoveFocus(c *gin.Context) {
	f, ok := s.focusByParam(c)
	if !ok {
		return
	}
	id := f.ID()
	if err := s.level.RemoveFocus(f); err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: fmt.Sprintf("Фокус %d удален", id)})
}

func (s *Server) handleChunk(c *gin.Context) {
	var coords [3]int
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Message: fmt.Sprintf("Координата %s должна быть числом", name)})
			return
		}
		coords[i] = v
	}
	loc := vec.New(coords[0], coords[1], coords[2])

	ch := s.level.GetChunk(loc, chunk.Options{WithMesh: true})
	c.JSON(http.StatusOK, ChunkInfo{
		Location: loc,
		InLevel:  !ch.IsSentinel(),
		Loaded:   ch.IsLoaded(),
		Empty:    ch.IsEmpty(),
		Full:     ch.IsFull(),
		Meshed:   ch.IsMeshed(),
		Active:   s.level.IsActive(loc),
	})
}

func (s *Server) handleProcessing(c *gin.Context) {
	layer, err := aperture.ParseLayer(c.DefaultQuery("layer", aperture.LayerLoaded.String()))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: err.Error()})
		return
	}

	snap, err := s.level.ProcessingChunks(layer)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ProcessingResponse{Layer: layer.String(), Queued: snap.Queued, Running: snap.Running})
}
