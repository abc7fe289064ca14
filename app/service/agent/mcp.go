package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"flightdesk/app/model"
	"flightdesk/app/service/catalog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"
)

const mcpServerVersion = "1.0.0"

// MCPServer exposes the session-independent catalog tools to external agents.
type MCPServer struct {
	catalog *catalog.Service
	server  *server.MCPServer
}

func NewMCP(di *do.Injector) (*MCPServer, error) {
	return NewMCPServer(do.MustInvoke[*catalog.Service](di)), nil
}

func NewMCPServer(catalogSvc *catalog.Service) *MCPServer {
	m := &MCPServer{
		catalog: catalogSvc,
		server:  server.NewMCPServer("flightdesk", mcpServerVersion, server.WithToolCapabilities(false)),
	}

	routeOptions := []mcp.ToolOption{
		mcp.WithString("origin", mcp.Required(), mcp.Description("Origin city name or 3-letter airport code")),
		mcp.WithString("destination", mcp.Required(), mcp.Description("Destination city name or 3-letter airport code")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Departure date, YYYY-MM-DD")),
	}

	m.server.AddTool(
		mcp.NewTool("search_flights", append([]mcp.ToolOption{mcp.WithDescription("Search flights for a route and date, cheapest first")}, routeOptions...)...),
		m.searchFlights,
	)
	m.server.AddTool(
		mcp.NewTool("cheapest_flight", append([]mcp.ToolOption{mcp.WithDescription("Find the cheapest flight for a route and date")}, routeOptions...)...),
		m.cheapestFlight,
	)
	m.server.AddTool(
		mcp.NewTool("suggest_destinations",
			mcp.WithDescription("Suggest destinations from an origin, cheapest flight per destination"),
			mcp.WithString("origin", mcp.Required(), mcp.Description("Origin city name or 3-letter airport code")),
			mcp.WithString("date", mcp.Description("Optional departure date, YYYY-MM-DD")),
			mcp.WithNumber("limit", mcp.Description("How many destinations to return, at most 10")),
		),
		m.suggestDestinations,
	)
	m.server.AddTool(
		mcp.NewTool("recommend_flight",
			mcp.WithDescription("Recommend the cheapest flight leaving an origin to any destination"),
			mcp.WithString("origin", mcp.Required(), mcp.Description("Origin city name or 3-letter airport code")),
			mcp.WithString("date", mcp.Description("Optional departure date, YYYY-MM-DD")),
		),
		m.recommendFlight,
	)
	m.server.AddTool(
		mcp.NewTool("lookup_trip",
			mcp.WithDescription("Look up a flight by trip id"),
			mcp.WithString("tripId", mcp.Required(), mcp.Description("Trip id such as Delta-DL412-2025-12-24")),
		),
		m.lookupTrip,
	)

	return m
}

func (m *MCPServer) Server() *server.MCPServer {
	return m.server
}

// Handler serves the tools over streamable HTTP.
func (m *MCPServer) Handler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(m.server)
}

func (m *MCPServer) searchFlights(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flights, err := m.catalog.Search(
		request.GetString("origin", ""),
		request.GetString("destination", ""),
		request.GetString("date", ""),
	)
	if err != nil {
		return toolFailure(err), nil
	}

	return toolSuccess(views(flights))
}

func (m *MCPServer) cheapestFlight(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flight, err := m.catalog.Cheapest(
		request.GetString("origin", ""),
		request.GetString("destination", ""),
		request.GetString("date", ""),
	)
	if err != nil {
		return toolFailure(err), nil
	}

	return toolSuccess(flightView{TripID: flight.TripID(), Flight: *flight})
}

func (m *MCPServer) suggestDestinations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flights, err := m.catalog.SuggestDestinations(
		request.GetString("origin", ""),
		request.GetString("date", ""),
		request.GetInt("limit", 0),
	)
	if err != nil {
		return toolFailure(err), nil
	}

	return toolSuccess(views(flights))
}

func (m *MCPServer) recommendFlight(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flight, err := m.catalog.RecommendFromOrigin(
		request.GetString("origin", ""),
		request.GetString("date", ""),
	)
	if err != nil {
		return toolFailure(err), nil
	}

	return toolSuccess(flightView{TripID: flight.TripID(), Flight: *flight})
}

func (m *MCPServer) lookupTrip(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tripID, err := request.RequireString("tripId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	flight, ok := m.catalog.LookupByTripID(tripID)
	if !ok {
		return toolFailure(fmt.Errorf("trip %s: %w", tripID, model.ErrNotFound)), nil
	}

	return toolSuccess(flightView{TripID: flight.TripID(), Flight: flight})
}

func toolSuccess(data any) (*mcp.CallToolResult, error) {
	result, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}

	return mcp.NewToolResultText(string(result)), nil
}

func toolFailure(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(failure(err))
}
