// Package agent provides the runtime shared by all fabric agents: controller
// registration, default message handling for task assignments and system
// notifications, status transitions and the task-kind handler registry.
//
// BaseAgent carries the runtime; concrete agents such as TextAgent compose it
// and register task handlers for the kinds of work their capabilities cover.
package agent
