package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/isdmx/groupbox/storage"
)

// registerGroupTools registers the group management tools
func (s *MCPServer) registerGroupTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "create_group",
		Description: "Create a new group with optional users and description",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Name of the group",
				},
				"user_ids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": "List of Telegram user IDs to add to the group",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Description of the group",
				},
			},
			Required: []string{"name"},
		},
	}, s.handleCreateGroup)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "delete_group",
		Description: "Delete a group by its ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"group_id": map[string]any{
					"type":        "integer",
					"description": "ID of the group to delete",
				},
			},
			Required: []string{"group_id"},
		},
	}, s.handleDeleteGroup)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "add_user_to_group",
		Description: "Add a user to a group",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"group_id": map[string]any{
					"type":        "integer",
					"description": "ID of the group",
				},
				"telegram_id": map[string]any{
					"type":        "integer",
					"description": "Telegram ID of the user to add",
				},
			},
			Required: []string{"group_id", "telegram_id"},
		},
	}, s.handleAddUserToGroup)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "remove_user_from_group",
		Description: "Remove a user from a group",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"group_id": map[string]any{
					"type":        "integer",
					"description": "ID of the group",
				},
				"telegram_id": map[string]any{
					"type":        "integer",
					"description": "Telegram ID of the user to remove",
				},
			},
			Required: []string{"group_id", "telegram_id"},
		},
	}, s.handleRemoveUserFromGroup)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_all_groups",
		Description: "Get a list of all groups in the database",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, s.handleGetAllGroups)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_group_by_id",
		Description: "Get detailed information about a specific group",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"group_id": map[string]any{
					"type":        "integer",
					"description": "ID of the group to retrieve",
				},
			},
			Required: []string{"group_id"},
		},
	}, s.handleGetGroupByID)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_group_by_name",
		Description: "Get detailed information about a group by its name",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Name of the group to retrieve",
				},
			},
			Required: []string{"name"},
		},
	}, s.handleGetGroupByName)
}

// registerUserTools registers the user management tools
func (s *MCPServer) registerUserTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "create_user",
		Description: "Create a new user in the database",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"telegram_id": map[string]any{
					"type":        "integer",
					"description": "Telegram ID of the user to create",
				},
				"username": map[string]any{
					"type":        "string",
					"description": "Telegram username of the user to create",
				},
				"first_name": map[string]any{
					"type":        "string",
					"description": "First name of the user to create",
				},
				"last_name": map[string]any{
					"type":        "string",
					"description": "Last name of the user to create",
				},
			},
			Required: []string{"telegram_id", "username"},
		},
	}, s.handleCreateUser)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_all_users",
		Description: "Get a list of all users in the database",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, s.handleGetAllUsers)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_user_by_telegram_id",
		Description: "Get detailed information about a user by their Telegram ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"telegram_id": map[string]any{
					"type":        "integer",
					"description": "Telegram ID of the user to retrieve",
				},
			},
			Required: []string{"telegram_id"},
		},
	}, s.handleGetUserByTelegramID)
}

func (s *MCPServer) handleCreateGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return nil, fmt.Errorf("name parameter is required: %w", err)
	}
	description := request.GetString("description", "")
	userIDs := request.GetIntSlice("user_ids", nil)

	s.logger.Info("creating group",
		zap.String("name", name),
		zap.Ints("user_ids", userIDs),
		zap.String("description", description))

	group, err := s.store.CreateGroup(ctx, storage.NewGroup{
		Name:        name,
		Description: description,
		UserIDs:     toInt64s(userIDs),
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return textResult(fmt.Sprintf("Error creating group: %v", err)), nil
	}
	if err != nil {
		s.logger.Error("error creating group", zap.Error(err), zap.String("name", name))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}

	result := fmt.Sprintf("Group '%s' created successfully with ID: %d", name, group.ID)
	if len(userIDs) > 0 {
		result += fmt.Sprintf("\nAdded %d users to the group", group.UsersCount)
	}
	return textResult(result), nil
}

func (s *MCPServer) handleDeleteGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groupID, err := request.RequireInt("group_id")
	if err != nil {
		return nil, fmt.Errorf("group_id parameter is required: %w", err)
	}

	s.logger.Info("deleting group", zap.Int("group_id", groupID))

	err = s.store.DeleteGroup(ctx, int64(groupID))
	if errors.Is(err, storage.ErrNotFound) {
		return textResult(fmt.Sprintf("Group with ID %d not found", groupID)), nil
	}
	if err != nil {
		s.logger.Error("error deleting group", zap.Error(err), zap.Int("group_id", groupID))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}

	return textResult(fmt.Sprintf("Group with ID %d deleted successfully", groupID)), nil
}

func (s *MCPServer) handleAddUserToGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groupID, err := request.RequireInt("group_id")
	if err != nil {
		return nil, fmt.Errorf("group_id parameter is required: %w", err)
	}
	telegramID, err := request.RequireInt("telegram_id")
	if err != nil {
		return nil, fmt.Errorf("telegram_id parameter is required: %w", err)
	}

	s.logger.Info("adding user to group",
		zap.Int("group_id", groupID),
		zap.Int("telegram_id", telegramID))

	err = s.store.AddUserToGroup(ctx, int64(groupID), int64(telegramID))
	if errors.Is(err, storage.ErrNotFound) {
		return textResult(fmt.Sprintf("Failed to add user %d to group %d. Check if both exist.", telegramID, groupID)), nil
	}
	if err != nil {
		s.logger.Error("error adding user to group", zap.Error(err))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}

	return textResult(fmt.Sprintf("User %d added to group %d successfully", telegramID, groupID)), nil
}

func (s *MCPServer) handleRemoveUserFromGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groupID, err := request.RequireInt("group_id")
	if err != nil {
		return nil, fmt.Errorf("group_id parameter is required: %w", err)
	}
	telegramID, err := request.RequireInt("telegram_id")
	if err != nil {
		return nil, fmt.Errorf("telegram_id parameter is required: %w", err)
	}

	s.logger.Info("removing user from group",
		zap.Int("group_id", groupID),
		zap.Int("telegram_id", telegramID))

	err = s.store.RemoveUserFromGroup(ctx, int64(groupID), int64(telegramID))
	if errors.Is(err, storage.ErrNotFound) {
		return textResult(fmt.Sprintf("Failed to remove user %d from group %d. Check if both exist and user is in the group.", telegramID, groupID)), nil
	}
	if err != nil {
		s.logger.Error("error removing user from group", zap.Error(err))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}

	return textResult(fmt.Sprintf("User %d removed from group %d successfully", telegramID, groupID)), nil
}

func (s *MCPServer) handleCreateUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	telegramID, err := request.RequireInt("telegram_id")
	if err != nil {
		return nil, fmt.Errorf("telegram_id parameter is required: %w", err)
	}
	username, err := request.RequireString("username")
	if err != nil {
		return nil, fmt.Errorf("username parameter is required: %w", err)
	}
	firstName := request.GetString("first_name", "")
	lastName := request.GetString("last_name", "")

	s.logger.Info("creating user",
		zap.Int("telegram_id", telegramID),
		zap.String("username", username))

	user, err := s.store.CreateUser(ctx, storage.NewUser{
		TelegramID: int64(telegramID),
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return textResult(fmt.Sprintf("Error creating user: %v", err)), nil
	}
	if err != nil {
		s.logger.Error("error creating user", zap.Error(err), zap.Int("telegram_id", telegramID))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}

	return textResult(fmt.Sprintf("User created successfully with ID: %d, Telegram ID: %d", user.ID, user.TelegramID)), nil
}

func (s *MCPServer) handleGetAllGroups(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Info("getting all groups")

	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		s.logger.Error("error getting groups", zap.Error(err))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}
	if len(groups) == 0 {
		return textResult("No groups found in the database"), nil
	}

	var b strings.Builder
	b.WriteString("Groups in the database:\n")
	for _, group := range groups {
		fmt.Fprintf(&b, "- ID: %d, Name: '%s'", group.ID, group.Name)
		if group.Description != "" {
			fmt.Fprintf(&b, ", Description: '%s'", group.Description)
		}
		fmt.Fprintf(&b, ", Users: %d\n", group.UsersCount)
	}
	return textResult(b.String()), nil
}

func (s *MCPServer) handleGetGroupByID(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groupID, err := request.RequireInt("group_id")
	if err != nil {
		return nil, fmt.Errorf("group_id parameter is required: %w", err)
	}

	s.logger.Info("getting group by id", zap.Int("group_id", groupID))

	group, err := s.store.GetGroupByID(ctx, int64(groupID))
	if errors.Is(err, storage.ErrNotFound) {
		return textResult(fmt.Sprintf("Group with ID %d not found", groupID)), nil
	}
	if err != nil {
		s.logger.Error("error getting group", zap.Error(err), zap.Int("group_id", groupID))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}

	return textResult(formatGroupDetails(group)), nil
}

func (s *MCPServer) handleGetGroupByName(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return nil, fmt.Errorf("name parameter is required: %w", err)
	}

	s.logger.Info("getting group by name", zap.String("name", name))

	group, err := s.store.GetGroupByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return textResult(fmt.Sprintf("Group with name '%s' not found", name)), nil
	}
	if err != nil {
		s.logger.Error("error getting group", zap.Error(err), zap.String("name", name))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}

	return textResult(formatGroupDetails(group)), nil
}

func (s *MCPServer) handleGetAllUsers(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Info("getting all users")

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.logger.Error("error getting users", zap.Error(err))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}
	if len(users) == 0 {
		return textResult("No users found in the database"), nil
	}

	var b strings.Builder
	b.WriteString("Users in the database:\n")
	for _, user := range users {
		fmt.Fprintf(&b, "- ID: %d, Telegram ID: %d", user.ID, user.TelegramID)
		if user.Username != "" {
			fmt.Fprintf(&b, ", Username: @%s", user.Username)
		}
		if name := fullName(user.FirstName, user.LastName); name != "" {
			fmt.Fprintf(&b, ", Name: %s", name)
		}
		fmt.Fprintf(&b, ", Groups: %d\n", user.GroupsCount)
	}
	return textResult(b.String()), nil
}

func (s *MCPServer) handleGetUserByTelegramID(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	telegramID, err := request.RequireInt("telegram_id")
	if err != nil {
		return nil, fmt.Errorf("telegram_id parameter is required: %w", err)
	}

	s.logger.Info("getting user by telegram id", zap.Int("telegram_id", telegramID))

	user, err := s.store.GetUserByTelegramID(ctx, int64(telegramID))
	if errors.Is(err, storage.ErrNotFound) {
		return textResult(fmt.Sprintf("User with Telegram ID %d not found", telegramID)), nil
	}
	if err != nil {
		s.logger.Error("error getting user", zap.Error(err), zap.Int("telegram_id", telegramID))
		return errorResult(fmt.Sprintf("Database error: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString("User Details:\n")
	fmt.Fprintf(&b, "- ID: %d\n", user.ID)
	fmt.Fprintf(&b, "- Telegram ID: %d\n", user.TelegramID)
	if user.Username != "" {
		fmt.Fprintf(&b, "- Username: @%s\n", user.Username)
	}
	if user.FirstName != "" {
		fmt.Fprintf(&b, "- First Name: %s\n", user.FirstName)
	}
	if user.LastName != "" {
		fmt.Fprintf(&b, "- Last Name: %s\n", user.LastName)
	}
	fmt.Fprintf(&b, "- Created: %s\n", user.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Groups (%d):\n", len(user.Groups))
	for _, group := range user.Groups {
		fmt.Fprintf(&b, "  * %s (ID: %d)\n", group.Name, group.ID)
	}
	return textResult(b.String()), nil
}

func formatGroupDetails(group *storage.Group) string {
	var b strings.Builder
	b.WriteString("Group Details:\n")
	fmt.Fprintf(&b, "- ID: %d\n", group.ID)
	fmt.Fprintf(&b, "- Name: '%s'\n", group.Name)
	if group.Description != "" {
		fmt.Fprintf(&b, "- Description: '%s'\n", group.Description)
	}
	fmt.Fprintf(&b, "- Created: %s\n", group.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Users (%d):\n", group.UsersCount)
	for _, user := range group.Users {
		fmt.Fprintf(&b, "  * %d", user.TelegramID)
		if user.Username != "" {
			fmt.Fprintf(&b, " (@%s)", user.Username)
		}
		if name := fullName(user.FirstName, user.LastName); name != "" {
			fmt.Fprintf(&b, " - %s", name)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func toInt64s(ids []int) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
		IsError: true,
	}
}
