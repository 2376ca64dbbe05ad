package tracker

// data-testid values of the tracker's web UI
const (
	tidInlineCreateTrigger   = "business-issue-create.ui.inline-create-trigger"
	tidInlineCreateContainer = "business-list.ui.list-view.base-table.inline-create.inline-create-container"
	tidListRowPrefix         = "business-list.ui.list-view.base-table.draggable-rows-container.row-wrapper-"
	tidListKeyCell           = "business-list.ui.list-view.key-cell.issue-key"

	tidBreadcrumb     = "issue.views.issue-base.foundation.breadcrumbs.current-issue.item"
	tidSummaryHeading = "issue.views.issue-base.foundation.summary.heading"
	tidStatus         = "issue.views.issue-base.foundation.status.status-field-wrapper"

	tidCreateChildIcon   = "issue-view-common-views.button.icon-button.Create child"
	tidChildSummaryField = "issue-view-common-views.child-issues-panel.inline-create.summary-textfield"
	tidChildKeyCell      = "native-issue-table.common.ui.issue-cells.issue-key.issue-key-cell"
	tidModalClose        = "issue-view-foundation.modal-close-button"

	tidAssignToMe         = "issue-field-assignee-assign-to-me.ui.assign-to-me.link"
	tidPriority           = "issue-field-priority-readview-full.ui.priority.wrapper"
	tidDueDate            = "issue.issue-view-layout.issue-view-date-field.duedate"
	tidCalendarOpen       = "issue-field-date-editview-full.ui.date.issue-field-date-picker--open-calendar-button"
	tidCalendarNext       = "issue-field-date-editview-full.ui.date.issue-field-date-picker--calendar--next-month"
	tidLabels             = "issue.views.issue-base.context.labels"
	tidInlineReadView     = "issue-field-inline-edit-read-view-container.ui.container"
	tidCommentsTab        = "issue-activity-feed.ui.buttons.Comments"
	tidCommentPlaceholder = "canned-comments.common.ui.comment-text-area-placeholder.textarea"
	tidCommentSave        = "comment-save-button"
)

// XPath templates take an xpathLiteral
const (
	xpAddChildButton     = "//span[text()='Add child work item']/ancestor::button"
	xpSubtaskPrompt      = "//div[@data-testid='issue-view-base.content.add-work-items.child-items-prompt.container']//button[@type='button']"
	xpSubtaskInput       = "//input[@id='childIssuesPanel']"
	xpCancelButton       = "//button[contains(.,'Cancel')]"
	xpChildRowTemplate   = "//tr[@data-testid='native-issue-table.ui.issue-row'][.//a[contains(text(), %s)]]"
	xpWorkTypeTemplate   = "//div[@role='group']//button[.//span[contains(.,%s)]]"
	xpListRowTemplate    = "//div[starts-with(@data-testid, '" + tidListRowPrefix + "')][.//*[contains(text(), %s)]]"
	xpLinkByTextTemplate = "//a[normalize-space()=%s]"

	cssWorkTypeButton  = "button[aria-label='Select work type']"
	cssSummaryTextarea = "textarea[placeholder='What needs to be done?']"
	cssCommentEditor   = `div[role="textbox"]`
)
