package controllers

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/HousDev/viewtrack/utils"
	"github.com/HousDev/viewtrack/views"
)

// ViewsController exposes the ingestion and reporting endpoints of the
// view-event engine.
type ViewsController struct {
	engine   *views.Engine
	cacheTTL time.Duration // <= 0 disables the redis read cache
}

// NewViewsController creates a new ViewsController instance.
func NewViewsController(engine *views.Engine, cacheTTL time.Duration) *ViewsController {
	return &ViewsController{engine: engine, cacheTTL: cacheTTL}
}

const cachePrefix = "cache:views:"

type recordRequest struct {
	PropertyID    *uint  `json:"property_id"`
	Slug          string `json:"slug"`
	DedupeKey     string `json:"dedupe_key"`
	SessionID     string `json:"session_id"`
	Source        string `json:"source"`
	Path          string `json:"path"`
	MinutesWindow int    `json:"minutes_window"`
}

// GetTotalViews returns global total/unique counts across all properties.
func (vc *ViewsController) GetTotalViews(ctx *gin.Context) {
	key := cachePrefix + "total"
	if vc.serveCached(ctx, key) {
		return
	}

	totals, err := vc.engine.TotalViews(ctx.Request.Context())
	if err != nil {
		logQueryError("total views", err)
		utils.Error(ctx, http.StatusInternalServerError, "failed to compute view totals")
		return
	}
	vc.respond(ctx, key, gin.H{
		"total_views":  totals.TotalViews,
		"unique_views": totals.UniqueViews,
	})
}

// GetPropertyViews returns counts scoped to one property. With ?unique=true
// only the distinct-identity count is returned.
func (vc *ViewsController) GetPropertyViews(ctx *gin.Context) {
	propertyID, ok := parsePropertyID(ctx)
	if !ok {
		return
	}
	unique := boolQuery(ctx, "unique")

	key := cachePrefix + "property:" + strconv.FormatUint(uint64(propertyID), 10) + ":unique=" + strconv.FormatBool(unique)
	if vc.serveCached(ctx, key) {
		return
	}

	if unique {
		n, err := vc.engine.PropertyUniqueViews(ctx.Request.Context(), propertyID)
		if err != nil {
			logQueryError("property unique views", err)
			utils.Error(ctx, http.StatusInternalServerError, "failed to compute view totals")
			return
		}
		vc.respond(ctx, key, gin.H{"property_id": propertyID, "unique_views": n})
		return
	}

	totals, err := vc.engine.PropertyViews(ctx.Request.Context(), propertyID)
	if err != nil {
		logQueryError("property views", err)
		utils.Error(ctx, http.StatusInternalServerError, "failed to compute view totals")
		return
	}
	vc.respond(ctx, key, gin.H{
		"property_id":  propertyID,
		"total_views":  totals.TotalViews,
		"unique_views": totals.UniqueViews,
	})
}

// GetTopViews returns the highest-viewed properties.
func (vc *ViewsController) GetTopViews(ctx *gin.Context) {
	vc.ranked(ctx, "top", vc.engine.TopViews)
}

// GetBottomViews returns the lowest-viewed properties.
func (vc *ViewsController) GetBottomViews(ctx *gin.Context) {
	vc.ranked(ctx, "bottom", vc.engine.BottomViews)
}

func (vc *ViewsController) ranked(ctx *gin.Context, name string, query func(context.Context, int, bool) ([]views.RankedView, error)) {
	limit := intQuery(ctx, "limit", 10)
	unique := boolQuery(ctx, "unique")

	key := cachePrefix + name + ":limit=" + strconv.Itoa(limit) + ":unique=" + strconv.FormatBool(unique)
	if vc.serveCached(ctx, key) {
		return
	}

	rows, err := query(ctx.Request.Context(), limit, unique)
	if err != nil {
		logQueryError(name+" views", err)
		utils.Error(ctx, http.StatusInternalServerError, "failed to compute ranked views")
		return
	}
	vc.respond(ctx, key, gin.H{"rows": rows})
}

// RecordPropertyView records one view for the property in the path.
func (vc *ViewsController) RecordPropertyView(ctx *gin.Context) {
	propertyID, ok := parsePropertyID(ctx)
	if !ok {
		return
	}
	req, ok := bindRecordRequest(ctx)
	if !ok {
		return
	}
	req.PropertyID = &propertyID
	vc.record(ctx, req)
}

// RecordView records one generic view; property scoping is optional.
func (vc *ViewsController) RecordView(ctx *gin.Context) {
	req, ok := bindRecordRequest(ctx)
	if !ok {
		return
	}
	vc.record(ctx, req)
}

func (vc *ViewsController) record(ctx *gin.Context, req recordRequest) {
	in := views.RecordInput{
		PropertyID:    req.PropertyID,
		Slug:          utils.Sanitize(strings.TrimSpace(req.Slug)),
		SessionID:     req.SessionID,
		DedupeKey:     req.DedupeKey,
		Source:        utils.Sanitize(strings.TrimSpace(req.Source)),
		Path:          utils.Sanitize(strings.TrimSpace(req.Path)),
		Referrer:      referrer(ctx.Request),
		IP:            clientIP(ctx.Request),
		UserAgent:     ctx.Request.UserAgent(),
		WindowMinutes: req.MinutesWindow,
	}

	result, err := vc.engine.Record(ctx.Request.Context(), in)
	if err != nil {
		logQueryError("record view", err)
		utils.Error(ctx, http.StatusInternalServerError, "failed to record view")
		return
	}

	meta := gin.H{}
	if result.Inserted {
		meta["inserted_id"] = result.EventID
		if result.Totals != nil {
			meta["totals"] = gin.H{
				"total_views":  result.Totals.TotalViews,
				"unique_views": result.Totals.UniqueViews,
			}
		}
		if vc.cacheTTL > 0 {
			utils.InvalidateByPrefix(cachePrefix)
		}
	}

	utils.Success(ctx, gin.H{
		"recorded": result.Inserted,
		"deduped":  result.Deduped,
		"meta":     meta,
	})
}

// serveCached answers from redis when the read cache holds the key.
func (vc *ViewsController) serveCached(ctx *gin.Context, key string) bool {
	if vc.cacheTTL <= 0 {
		return false
	}
	if b, ok := utils.CacheGetBytes(key); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return true
	}
	return false
}

func (vc *ViewsController) respond(ctx *gin.Context, key string, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	if vc.cacheTTL > 0 {
		utils.CacheSetJSON(key, body, vc.cacheTTL)
	}
	ctx.JSON(http.StatusOK, body)
}

func bindRecordRequest(ctx *gin.Context) (recordRequest, bool) {
	var req recordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.Error(ctx, http.StatusBadRequest, "invalid request payload")
		return recordRequest{}, false
	}
	return req, true
}

func parsePropertyID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, "invalid property id")
		return 0, false
	}
	return uint(id), true
}

func boolQuery(ctx *gin.Context, name string) bool {
	v, err := strconv.ParseBool(ctx.Query(name))
	return err == nil && v
}

func intQuery(ctx *gin.Context, name string, def int) int {
	raw := ctx.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// clientIP derives the visitor address: first X-Forwarded-For entry when the
// request came through a proxy, otherwise the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if i := strings.Index(first, ","); i >= 0 {
			first = first[:i]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// referrer accepts both the historical misspelled header and the correct one.
func referrer(r *http.Request) string {
	if v := r.Header.Get("Referer"); v != "" {
		return v
	}
	return r.Header.Get("Referrer")
}

func logQueryError(what string, err error) {
	if utils.Sugar != nil {
		utils.Sugar.Errorf("%s failed: %v", what, err)
	}
}
