package handler

import (
	"errors"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/jobctl/internal/model"
	"github.com/makeasinger/jobctl/internal/output"
	"github.com/makeasinger/jobctl/internal/schema"
	"github.com/makeasinger/jobctl/internal/service"
	"github.com/makeasinger/jobctl/internal/store"
	"github.com/makeasinger/jobctl/pkg/response"
)

type JobHandler struct {
	service *service.JobService
}

func NewJobHandler(svc *service.JobService) *JobHandler {
	return &JobHandler{service: svc}
}

// Stats handles GET /stats
func (h *JobHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return fail(c, err, response.StoreError)
	}
	return response.OK(c, stats)
}

// Types handles GET /job/types
func (h *JobHandler) Types(c *fiber.Ctx) error {
	types, err := h.service.Types(c.UserContext())
	if err != nil {
		return fail(c, err, response.StoreError)
	}
	if types == nil {
		types = []string{}
	}
	return response.OK(c, types)
}

// Range handles the three range shapes under /jobs:
//
//	GET /jobs/:from..:to[/:order]
//	GET /jobs/:state/:from..:to[/:order]
//	GET /jobs/:type/:state/:from..:to[/:order]
func (h *JobHandler) Range(c *fiber.Ctx) error {
	q, err := parseRangePath(c.Params("*"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	var jobs []*model.Job
	switch {
	case q.jobType != "":
		jobs, err = h.service.RangeByType(c.UserContext(), q.jobType, q.state, q.bounds, q.order)
	case q.state != "":
		jobs, err = h.service.RangeByState(c.UserContext(), q.state, q.bounds, q.order)
	default:
		jobs, err = h.service.RangeAll(c.UserContext(), q.bounds, q.order)
	}
	if err != nil {
		return fail(c, err, response.StoreError)
	}
	return response.OK(c, jobs)
}

type rangePath struct {
	jobType string
	state   model.JobState
	bounds  model.Range
	order   model.Order
}

// parseRangePath reads [type/][state/]from..to[/order].
func parseRangePath(raw string) (rangePath, error) {
	var q rangePath

	segments := strings.Split(strings.Trim(raw, "/"), "/")
	at := -1
	for i, s := range segments {
		if strings.Contains(s, "..") {
			at = i
			break
		}
	}
	if at < 0 {
		return q, errors.New("missing range, expected from..to")
	}

	bounds, err := model.ParseRange(segments[at])
	if err != nil {
		return q, err
	}
	q.bounds = bounds

	before, after := segments[:at], segments[at+1:]
	switch len(before) {
	case 0:
	case 1:
		q.state, err = model.ParseState(before[0])
	case 2:
		q.jobType = before[0]
		q.state, err = model.ParseState(before[1])
	default:
		err = errors.New("too many path segments before range")
	}
	if err != nil {
		return q, err
	}

	switch len(after) {
	case 0:
		q.order = model.OrderAsc
	case 1:
		q.order, err = model.ParseOrder(after[0])
	default:
		err = errors.New("too many path segments after range")
	}
	return q, err
}

// Get handles GET /job/:id
func (h *JobHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err, response.StoreError)
	}
	if job.State == model.JobStateComplete {
		return c.Redirect(strings.TrimSuffix(c.Path(), "/")+"/output", fiber.StatusSeeOther)
	}
	return response.OK(c, job)
}

// Output handles GET /job/:id/output
func (h *JobHandler) Output(c *fiber.Ctx) error {
	res, err := h.service.Output(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err, response.ServiceError)
	}

	switch res.Kind {
	case output.Stream:
		if ext := filepath.Ext(res.File); ext != "" {
			c.Type(ext)
		} else {
			c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		}
		return c.Status(fiber.StatusOK).SendStream(res.Body)
	case output.Redirect:
		return c.Redirect(res.URL, fiber.StatusFound)
	default:
		return response.OK(c, res.Value)
	}
}

// Create handles POST /job
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var body map[string]interface{}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	job, err := h.service.Create(c.UserContext(), body)
	if err != nil {
		return fail(c, err, response.StoreError)
	}

	location := c.BaseURL() + c.OriginalURL() + "/" + job.ID
	c.Set(fiber.HeaderContentLocation, location)

	return response.Accepted(c, model.CreateJobResponse{
		State:   job.State,
		Message: "job accepted",
		ID:      job.ID,
		Links:   []map[string]model.Link{{"self": {Href: location}}},
	})
}

// Remove handles DELETE /job/:id
func (h *JobHandler) Remove(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.Remove(c.UserContext(), id); err != nil {
		return fail(c, err, response.StoreError)
	}
	return response.OK(c, model.MessageResponse{Message: "job " + id + " removed"})
}

// UpdatePriority handles PUT /job/:id/priority/:priority
func (h *JobHandler) UpdatePriority(c *fiber.Ctx) error {
	priority, err := strconv.Atoi(c.Params("priority"))
	if err != nil {
		return response.BadRequest(c, "invalid priority")
	}

	if err := h.service.UpdatePriority(c.UserContext(), c.Params("id"), priority); err != nil {
		return fail(c, err, response.StoreError)
	}
	return response.OK(c, model.MessageResponse{Message: "updated priority"})
}

// UpdateState handles PUT /job/:id/state/:state
func (h *JobHandler) UpdateState(c *fiber.Ctx) error {
	state, err := model.ParseState(c.Params("state"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.service.UpdateState(c.UserContext(), c.Params("id"), state); err != nil {
		return fail(c, err, response.StoreError)
	}
	return response.OK(c, model.MessageResponse{Message: "updated state"})
}

// Search handles GET /search?q=
func (h *JobHandler) Search(c *fiber.Ctx) error {
	ids, err := h.service.Search(c.UserContext(), c.Query("q"))
	if err != nil {
		return fail(c, err, response.ServiceError)
	}
	return response.OK(c, ids)
}

// Log handles GET /job/:id/log
func (h *JobHandler) Log(c *fiber.Ctx) error {
	lines, err := h.service.Log(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err, response.StoreError)
	}
	if lines == nil {
		lines = []string{}
	}
	return response.OK(c, lines)
}

// fail maps service errors onto the error envelope. Anything unrecognized is
// a collaborator failure and its message is passed through unchanged.
func fail(c *fiber.Ctx, err error, respond func(*fiber.Ctx, string) error) error {
	var verr *schema.ValidationError
	switch {
	case errors.Is(err, schema.ErrUnknownType):
		return response.InvalidJobType(c, "Must provide a valid job type")
	case errors.As(err, &verr):
		return response.ValidationError(c, "Input parameters could not be validated", verr.Errors)
	case errors.Is(err, service.ErrInvalidOption), errors.Is(err, service.ErrInvalidState):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, store.ErrJobNotFound):
		return response.NotFound(c, err.Error())
	}

	log.Printf("Request %s %s failed: %v", c.Method(), c.Path(), err)
	return respond(c, err.Error())
}
