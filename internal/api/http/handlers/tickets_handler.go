package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TicketsHandler exposes ticket creation, lookup and transitions.
type TicketsHandler struct {
	service *service.TicketService
	retries int
}

// NewTicketsHandler constructs handler. retries bounds how often a transition
// that lost an optimistic-concurrency race is replayed.
func NewTicketsHandler(ticketService *service.TicketService, retries int) *TicketsHandler {
	return &TicketsHandler{service: ticketService, retries: retries}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Create(c.UserContext(), actor, req.Spec())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetTicketByKey GET /tickets/by-key/:key.
func (h *TicketsHandler) GetTicketByKey(c *fiber.Ctx) error {
	ticket, err := h.service.GetByIssueKey(c.UserContext(), c.Params("key"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ApplyTransition POST /tickets/:id/transitions/:name.
func (h *TicketsHandler) ApplyTransition(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var payload dto.TransitionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	var ticket *domain.Ticket
	err = service.RetryOnConflict(c.UserContext(), h.retries, func() error {
		var err error
		ticket, err = h.service.Transition(c.UserContext(), service.TransitionRequest{
			TicketID: c.Params("id"),
			Name:     domain.Transition(c.Params("name")),
			Actor:    actor,
			Payload:  payload,
		})
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AvailableTransitions GET /tickets/:id/transitions.
func (h *TicketsHandler) AvailableTransitions(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	names, err := h.service.Available(c.UserContext(), actor, ticket.ID)
	if err != nil {
		return err
	}
	if names == nil {
		names = []domain.Transition{}
	}
	return c.JSON(fiber.Map{"data": dto.AvailableTransitionsResponse{
		TicketID:    ticket.ID,
		Status:      ticket.Status,
		Transitions: names,
	}})
}

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal == nil {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor, nil
}
