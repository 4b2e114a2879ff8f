package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bookhaven/book-lending-go/lending"
	"github.com/bookhaven/book-lending-go/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the services to HTTP routes.
type Server struct {
	lending    *service.LendingService
	catalog    *service.CatalogService
	membership *service.MembershipService
	tokens     TokenIssuer
	pinger     Pinger
	logger     zerolog.Logger
}

// NewServer creates a Server.
func NewServer(
	lendingService *service.LendingService,
	catalogService *service.CatalogService,
	membershipService *service.MembershipService,
	tokens TokenIssuer,
	pinger Pinger,
	logger zerolog.Logger,
) *Server {

	return &Server{
		lending:    lendingService,
		catalog:    catalogService,
		membership: membershipService,
		tokens:     tokens,
		pinger:     pinger,
		logger:     logger,
	}
}

// Handler returns the routed HTTP handler with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("GET /api/books", s.handleListBooks)
	mux.HandleFunc("GET /api/books/{id}", s.handleGetBook)
	mux.HandleFunc("POST /api/books", s.adminOnly(s.handleCreateBook))
	mux.HandleFunc("PUT /api/books/{id}", s.adminOnly(s.handleUpdateBook))
	mux.HandleFunc("DELETE /api/books/{id}", s.adminOnly(s.handleDeleteBook))

	mux.HandleFunc("POST /api/borrows", s.authenticated(s.handleBorrow))
	mux.HandleFunc("PUT /api/borrows/{id}/return", s.authenticated(s.handleReturn))
	mux.HandleFunc("GET /api/borrows", s.authenticated(s.handleListBorrows))

	mux.HandleFunc("GET /api/users", s.adminOnly(s.handleListUsers))
	mux.HandleFunc("GET /api/users/me", s.authenticated(s.handleMe))
	mux.HandleFunc("PUT /api/users/{id}/role", s.adminOnly(s.handleChangeRole))
	mux.HandleFunc("DELETE /api/users/{id}", s.adminOnly(s.handleDeleteUser))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return requestLogging(s.logger, mux)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidField("request body is not valid JSON"))
		return
	}

	if err := req.validate(); err != nil {
		respondError(w, err)
		return
	}

	user, registerErr := s.membership.Register(r.Context(), req.Name, req.Email, req.Password)
	if registerErr != nil {
		respondError(w, registerErr)
		return
	}

	token, tokenErr := s.tokens.Issue(user)
	if tokenErr != nil {
		respondError(w, tokenErr)
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: toUserResponse(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidField("request body is not valid JSON"))
		return
	}

	if err := req.validate(); err != nil {
		respondError(w, err)
		return
	}

	user, authErr := s.membership.Authenticate(r.Context(), req.Email, req.Password)
	if authErr != nil {
		respondError(w, authErr)
		return
	}

	token, tokenErr := s.tokens.Issue(user)
	if tokenErr != nil {
		respondError(w, tokenErr)
		return
	}

	respondJSON(w, http.StatusOK, authResponse{Token: token, User: toUserResponse(user)})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := lending.BookFilter{
		Title:         query.Get("title"),
		Author:        query.Get("author"),
		AvailableOnly: query.Get("available") == "true",
	}

	books, err := s.catalog.ListBooks(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	responses := make([]bookResponse, 0, len(books))
	for _, book := range books {
		responses = append(responses, toBookResponse(book))
	}

	respondJSON(w, http.StatusOK, responses)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	bookID, idErr := parsePathID(r, "id")
	if idErr != nil {
		respondError(w, idErr)
		return
	}

	book, err := s.catalog.GetBook(r.Context(), bookID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toBookResponse(book))
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidField("request body is not valid JSON"))
		return
	}

	if err := req.validate(); err != nil {
		respondError(w, err)
		return
	}

	book, err := s.catalog.AddBook(r.Context(), req.Title, req.Author, req.Description)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toBookResponse(book))
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	bookID, idErr := parsePathID(r, "id")
	if idErr != nil {
		respondError(w, idErr)
		return
	}

	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidField("request body is not valid JSON"))
		return
	}

	if err := req.validate(); err != nil {
		respondError(w, err)
		return
	}

	book, err := s.catalog.UpdateBook(r.Context(), bookID, req.Title, req.Author, req.Description)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toBookResponse(book))
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	bookID, idErr := parsePathID(r, "id")
	if idErr != nil {
		respondError(w, idErr)
		return
	}

	if err := s.catalog.DeleteBook(r.Context(), bookID); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidField("request body is not valid JSON"))
		return
	}

	bookID, idErr := uuid.Parse(req.BookID)
	if idErr != nil {
		respondError(w, invalidField("book_id is not a valid UUID"))
		return
	}

	borrow, err := s.lending.Borrow(r.Context(), caller, bookID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toBorrowResponse(borrow))
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	borrowID, idErr := parsePathID(r, "id")
	if idErr != nil {
		respondError(w, idErr)
		return
	}

	borrow, err := s.lending.Return(r.Context(), caller, borrowID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toBorrowResponse(borrow))
}

func (s *Server) handleListBorrows(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	targetID := caller.UserID

	if requested := r.URL.Query().Get("user_id"); requested != "" {
		parsed, idErr := uuid.Parse(requested)
		if idErr != nil {
			respondError(w, invalidField("user_id is not a valid UUID"))
			return
		}

		if !canReadBorrowsOf(caller, parsed) {
			respondJSON(w, http.StatusForbidden, errorResponse{Error: "cannot read another user's borrows"})
			return
		}

		targetID = parsed
	}

	borrowed, err := s.lending.ListActiveBorrows(r.Context(), targetID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toBorrowedBookResponses(borrowed))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := lending.UserFilter{
		Name:  query.Get("name"),
		Email: query.Get("email"),
	}

	users, err := s.membership.ListUsers(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	responses := make([]userResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, toUserResponse(user))
	}

	respondJSON(w, http.StatusOK, responses)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())

	user, err := s.membership.GetUser(r.Context(), caller.UserID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, idErr := parsePathID(r, "id")
	if idErr != nil {
		respondError(w, idErr)
		return
	}

	var req changeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidField("request body is not valid JSON"))
		return
	}

	role, roleErr := req.validate()
	if roleErr != nil {
		respondError(w, roleErr)
		return
	}

	user, err := s.membership.PromoteUser(r.Context(), userID, role)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, idErr := parsePathID(r, "id")
	if idErr != nil {
		respondError(w, idErr)
		return
	}

	if err := s.membership.DeleteUser(r.Context(), userID); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parsePathID reads a UUID path segment, rejecting malformed IDs before
// any service is called.
func parsePathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.UUID{}, invalidField("%s is not a valid UUID", name)
	}

	return id, nil
}
