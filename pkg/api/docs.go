// Package api provides the control-plane REST API for chainobserver
// @title chainobserver Control API
// @version 1.0
// @description REST API for registering and inspecting chainhook predicates
// @contact.name API Support
// @contact.url https://github.com/goran-ethernal/chainobserver
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /
// @schemes http https
// @x-logo {"url":"https://github.com/goran-ethernal/chainobserver/raw/main/logo.png"}
package api
