package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/storedetect/internal/adapters/devicefeed"
	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/usecases"
)

const maxStoreRadius = 5000

// DetectionResponse is the state of a device's detection session.
type DetectionResponse struct {
	DeviceID   string                  `json:"device_id"`
	State      domain.DetectionState   `json:"state"`
	Continuous bool                    `json:"continuous"`
	Result     *domain.DetectionResult `json:"result"`
	Error      string                  `json:"error,omitempty"`
	Message    string                  `json:"message,omitempty"`
}

type storeRequest struct {
	StoreID string `json:"store_id"`
}

func detectionResponse(sess *usecases.DetectionService, res *domain.DetectionResult, err error) DetectionResponse {
	resp := DetectionResponse{
		DeviceID:   sess.DeviceID(),
		State:      sess.State(),
		Continuous: sess.Continuous(),
		Result:     res,
	}
	if err != nil {
		resp.Error = errorCode(err)
		resp.Message = err.Error()
	}
	return resp
}

// deviceID validates the :id path parameter.
func deviceID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if err := domain.ValidateDeviceID(id); err != nil {
		return "", err
	}
	return id, nil
}

func queryPoint(c *fiber.Ctx) (domain.GeoPoint, bool) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{Lat: lat, Lng: lng}, true
}

// NearbyStoresHandler returns active stores within a radius of a point.
func NearbyStoresHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := queryPoint(c)
		if !ok {
			return errBadRequest(c, "lat and lng are required")
		}
		radius := c.QueryInt("radius", usecases.DefaultSearchRadiusMeters)
		if radius <= 0 || radius > maxStoreRadius {
			return errBadRequest(c, "radius must be between 1 and 5000 meters")
		}

		stores, err := deps.Stores.FindNearby(c.UserContext(), p, radius)
		if err != nil {
			return respondError(c, err)
		}
		if stores == nil {
			stores = []domain.Store{}
		}
		return c.JSON(stores)
	}
}

// SearchStoresHandler searches stores by name, chain or address.
func SearchStoresHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			return errBadRequest(c, "q query parameter is required")
		}
		if len(query) > 200 {
			return errBadRequest(c, "query too long (max 200 characters)")
		}

		stores, err := deps.Stores.SearchByText(c.UserContext(), query, c.QueryInt("limit", 20))
		if err != nil {
			return respondError(c, err)
		}
		if stores == nil {
			stores = []domain.Store{}
		}
		return c.JSON(stores)
	}
}

// GetStoreHandler returns a single store by ID.
func GetStoreHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		store, err := deps.Stores.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(store)
	}
}

// applyReport hands a report to the device's feed. The session is touched
// first so the feed belongs to a session and is released with it.
func applyReport(deps *Dependencies, id string, report devicefeed.Report) (*usecases.DetectionService, error) {
	sess := deps.Sessions.Get(id)
	if err := deps.Feeds.Apply(id, report); err != nil {
		return sess, err
	}
	return sess, nil
}

// DeviceReportHandler feeds a permission, position or WiFi report into the
// device's platform feed.
func DeviceReportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		var report devicefeed.Report
		if err := c.BodyParser(&report); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if _, err := applyReport(deps, id, report); err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	}
}

// DetectHandler applies an optional report and runs one detection cycle.
// Detection outcomes such as "no store found" are part of the 200 response.
func DetectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		sess := deps.Sessions.Get(id)
		if len(c.Body()) > 0 {
			var report devicefeed.Report
			if err := c.BodyParser(&report); err != nil {
				return errBadRequest(c, "invalid request body")
			}
			if sess, err = applyReport(deps, id, report); err != nil {
				return respondError(c, err)
			}
		}

		res, err := sess.Detect(c.UserContext())
		return c.JSON(detectionResponse(sess, res, err))
	}
}

// GetDetectionHandler returns the current state and the last result.
func GetDetectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		sess, ok := deps.Sessions.Lookup(id)
		if !ok {
			return c.JSON(DetectionResponse{DeviceID: id, State: domain.StateInitial})
		}
		return c.JSON(detectionResponse(sess, sess.LastResult(), nil))
	}
}

// ConfirmHandler confirms the detected store.
func ConfirmHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		sess, ok := deps.Sessions.Lookup(id)
		if !ok {
			return respondError(c, domain.ErrNoDetection)
		}
		res, err := sess.Confirm(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(detectionResponse(sess, res, nil))
	}
}

// ManualHandler discards the detection and enters manual mode.
func ManualHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		sess := deps.Sessions.Get(id)
		return c.JSON(detectionResponse(sess, sess.ChangeStore(), nil))
	}
}

// SelectHandler records a manually selected store.
func SelectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		var req storeRequest
		if err := c.BodyParser(&req); err != nil || req.StoreID == "" {
			return errBadRequest(c, "store_id is required")
		}
		sess := deps.Sessions.Get(id)
		res, err := sess.SelectStore(c.UserContext(), req.StoreID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(detectionResponse(sess, res, nil))
	}
}

// StartContinuousHandler starts continuous detection for the device.
func StartContinuousHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		sess := deps.Sessions.Get(id)
		// The watch outlives the request; the registry stops it on eviction.
		if err := sess.StartContinuous(deps.background()); err != nil {
			return respondError(c, err)
		}
		return c.JSON(detectionResponse(sess, sess.LastResult(), nil))
	}
}

// StopContinuousHandler stops continuous detection for the device.
func StopContinuousHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		sess, ok := deps.Sessions.Lookup(id)
		if !ok {
			return c.SendStatus(fiber.StatusNoContent)
		}
		sess.StopContinuous()
		return c.JSON(detectionResponse(sess, sess.LastResult(), nil))
	}
}

// GetPreferencesHandler returns the device's confirmation state.
func GetPreferencesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		st, err := deps.Preferences.Get(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(st)
	}
}

// ToggleFavoriteHandler flips the favorite flag of a store.
func ToggleFavoriteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		storeID := c.Params("storeId")
		favorite, err := deps.Preferences.ToggleFavorite(c.UserContext(), id, storeID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"store_id": storeID, "favorite": favorite})
	}
}

// SetDefaultHandler sets the default store.
func SetDefaultHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		var req storeRequest
		if err := c.BodyParser(&req); err != nil || req.StoreID == "" {
			return errBadRequest(c, "store_id is required")
		}
		if err := deps.Preferences.SetDefault(c.UserContext(), id, req.StoreID); err != nil {
			return respondError(c, err)
		}
		return GetPreferencesHandler(deps)(c)
	}
}

// ClearDefaultHandler clears the default store.
func ClearDefaultHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		if err := deps.Preferences.ClearDefault(c.UserContext(), id); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ResetPreferencesHandler clears all stored data of the device.
func ResetPreferencesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deviceID(c)
		if err != nil {
			return respondError(c, err)
		}
		if err := deps.Preferences.Reset(c.UserContext(), id); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
