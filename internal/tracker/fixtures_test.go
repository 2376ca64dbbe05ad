package tracker

import "strings"

const listViewPage = `<!doctype html>
<html><body>
  <div id="quick">Quick links</div>
  <div id="menu"></div>
  <div id="nav"></div>
  <div id="view" style="display:none">
    <button data-testid="business-issue-create.ui.inline-create-trigger" id="trigger">+ Create</button>
    <div data-testid="business-list.ui.list-view.base-table.inline-create.inline-create-container" id="inline" style="display:none">
      <textarea placeholder="What needs to be done?"></textarea>
      <button id="create">Create</button>
    </div>
    <div id="rows">
      <div data-testid="business-list.ui.list-view.base-table.draggable-rows-container.row-wrapper-10001">
        <a data-testid="business-list.ui.list-view.key-cell.issue-key" href="/browse/DEMO-1">DEMO-1</a>
        <span>Automated Test Issue_UI</span>
      </div>
    </div>
  </div>
  <script>
    const link = (text, onClick) => {
      const a = document.createElement('a');
      a.href = '#';
      a.textContent = text;
      a.addEventListener('click', (e) => { e.preventDefault(); onClick(); });
      return a;
    };
    document.getElementById('quick').addEventListener('click', () => {
      const menu = document.getElementById('menu');
      if (menu.firstChild) return;
      menu.appendChild(link('JiraAutomationDemo Team-managed software', () => {
        const nav = document.getElementById('nav');
        if (nav.firstChild) return;
        nav.appendChild(link('List', () => {
          document.getElementById('view').style.display = 'block';
        }));
      }));
    });
    document.getElementById('trigger').addEventListener('click', () => {
      document.getElementById('inline').style.display = 'block';
    });
    let next = 2;
    document.getElementById('create').addEventListener('click', () => {
      const summary = document.querySelector('#inline textarea').value;
      const key = 'DEMO-' + next;
      const row = document.createElement('div');
      row.setAttribute('data-testid', 'business-list.ui.list-view.base-table.draggable-rows-container.row-wrapper-1000' + next);
      row.innerHTML = '<a data-testid="business-list.ui.list-view.key-cell.issue-key" href="/browse/' + key + '">' + key + '</a><span></span>';
      row.querySelector('span').textContent = summary;
      document.getElementById('rows').appendChild(row);
      next++;
    });
  </script>
</body></html>`

const rootPage = `<!doctype html>
<html><body><a href="/browse/DEMO">JiraAutomationDemo</a></body></html>`

// projectPage lists DEMO-1. With newTab set the link opens the issue in a
// new tab, otherwise it navigates the current one.
func projectPage(newTab bool) string {
	page := `<!doctype html>
<html><body>
  <a href="/browse/DEMO-1" id="issue">DEMO-1</a>
  <script>
    if (NEW_TAB) {
      document.getElementById('issue').addEventListener('click', (e) => {
        e.preventDefault();
        window.open(e.currentTarget.href, '_blank');
      });
    }
  </script>
</body></html>`
	if newTab {
		return strings.Replace(page, "NEW_TAB", "true", 1)
	}
	return strings.Replace(page, "NEW_TAB", "false", 1)
}

const fieldsPage = `<!doctype html>
<html><body>
  <div data-testid="issue.views.issue-base.foundation.breadcrumbs.current-issue.item"><span>DEMO-1</span></div>
  <h1 data-testid="issue.views.issue-base.foundation.summary.heading">Automated Test Issue_UI</h1>

  <p><span id="assignee-name">Unassigned</span>
    <a href="#" data-testid="issue-field-assignee-assign-to-me.ui.assign-to-me.link" id="assign">Assign to me</a></p>

  <div data-testid="issue-field-priority-readview-full.ui.priority.wrapper" id="priority"><span>Medium</span></div>
  <div id="priority-options" style="display:none">
    <div role="option">Low</div>
    <div role="option">High</div>
  </div>

  <div data-testid="issue.issue-view-layout.issue-view-date-field.duedate" id="due">None</div>
  <div id="calendar" style="display:none">
    <button data-testid="issue-field-date-editview-full.ui.date.issue-field-date-picker--open-calendar-button">Open</button>
    <button data-testid="issue-field-date-editview-full.ui.date.issue-field-date-picker--calendar--next-month" id="next">Next</button>
    <div id="days"></div>
  </div>

  <div data-testid="issue.views.issue-base.context.labels" id="labels">
    <div data-testid="issue-field-inline-edit-read-view-container.ui.container" id="labels-read">None</div>
    <input id="label-input" style="display:none" />
    <div id="label-list"></div>
  </div>

  <button data-testid="issue-activity-feed.ui.buttons.Comments" id="comments-tab">Comments</button>
  <div id="comment-area" style="display:none">
    <textarea data-testid="canned-comments.common.ui.comment-text-area-placeholder.textarea" id="placeholder"></textarea>
    <div id="editor-box" style="display:none">
      <div role="textbox" contenteditable="true" id="editor"></div>
      <button data-testid="comment-save-button" id="save">Save</button>
    </div>
  </div>
  <div id="comment-list"></div>

  <script>
    const $ = (id) => document.getElementById(id);
    const show = (id, on) => { $(id).style.display = on ? 'block' : 'none'; };

    $('assign').addEventListener('click', (e) => {
      e.preventDefault();
      $('assignee-name').textContent = 'Bot User';
      $('assign').style.display = 'none';
    });

    $('priority').addEventListener('click', () => show('priority-options', true));
    document.querySelectorAll('#priority-options [role="option"]').forEach((o) => o.addEventListener('click', () => {
      $('priority').querySelector('span').textContent = o.textContent;
      show('priority-options', false);
    }));

    const months = ['January', 'February', 'March', 'April', 'May', 'June', 'July',
      'August', 'September', 'October', 'November', 'December'];
    const weekdays = ['Sunday', 'Monday', 'Tuesday', 'Wednesday', 'Thursday', 'Friday', 'Saturday'];
    let shown = new Date(2025, 10, 1);
    const pad = (n) => String(n).padStart(2, '0');
    const render = () => {
      const y = shown.getFullYear();
      const m = shown.getMonth();
      const days = $('days');
      days.innerHTML = '';
      for (let d = 1; d <= new Date(y, m + 1, 0).getDate(); d++) {
        const b = document.createElement('button');
        b.textContent = d;
        b.setAttribute('aria-label', d + ', ' + weekdays[new Date(y, m, d).getDay()] + ' ' + months[m] + ' ' + y);
        b.addEventListener('click', () => {
          $('due').textContent = y + '-' + pad(m + 1) + '-' + pad(d);
          show('calendar', false);
        });
        days.appendChild(b);
      }
    };
    $('due').addEventListener('click', () => { show('calendar', true); render(); });
    $('next').addEventListener('click', () => {
      shown = new Date(shown.getFullYear(), shown.getMonth() + 1, 1);
      render();
    });

    let pending = [];
    $('labels-read').addEventListener('click', () => {
      show('labels-read', false);
      $('label-input').style.display = 'inline-block';
    });
    $('label-input').addEventListener('keydown', (e) => {
      if (e.key !== 'Enter') return;
      pending.push($('label-input').value);
      $('label-input').value = '';
    });
    document.querySelector('h1').addEventListener('click', () => {
      if (!pending.length) return;
      pending.forEach((l) => {
        const s = document.createElement('span');
        s.textContent = l;
        $('label-list').appendChild(s);
      });
      pending = [];
      $('label-input').style.display = 'none';
      show('labels-read', true);
    });

    $('comments-tab').addEventListener('click', () => show('comment-area', true));
    $('placeholder').addEventListener('click', () => {
      $('placeholder').style.display = 'none';
      show('editor-box', true);
    });
    $('save').addEventListener('click', () => {
      const p = document.createElement('p');
      p.textContent = $('editor').textContent;
      $('comment-list').appendChild(p);
      $('editor').textContent = '';
      show('editor-box', false);
      $('placeholder').style.display = 'block';
    });
  </script>
</body></html>`

// childPanelPage is an epic with no work type selector. The add button only
// opens the panel when addWorks is set.
func childPanelPage(addWorks bool) string {
	page := `<!doctype html>
<html><body>
  <div data-testid="issue.views.issue-base.foundation.breadcrumbs.current-issue.item"><span>DEMO-5</span></div>
  <button id="add"><span>Add child work item</span></button>
  <div id="panel" style="display:none">
    <input data-testid="issue-view-common-views.child-issues-panel.inline-create.summary-textfield" id="summary" />
  </div>
  <table><tbody id="rows"></tbody></table>
  <script>
    if (ADD_WORKS) {
      document.getElementById('add').addEventListener('click', () => {
        document.getElementById('panel').style.display = 'block';
      });
    }
    document.getElementById('summary').addEventListener('keydown', (e) => {
      if (e.key !== 'Enter') return;
      const tr = document.createElement('tr');
      tr.setAttribute('data-testid', 'native-issue-table.ui.issue-row');
      tr.innerHTML = '<td><a data-testid="native-issue-table.common.ui.issue-cells.issue-key.issue-key-cell" href="/browse/DEMO-10">DEMO-10</a></td>' +
        '<td><a href="/browse/DEMO-10"></a></td>';
      tr.querySelectorAll('a')[1].textContent = e.target.value;
      document.getElementById('rows').appendChild(tr);
    });
  </script>
</body></html>`
	if addWorks {
		return strings.Replace(page, "ADD_WORKS", "true", 1)
	}
	return strings.Replace(page, "ADD_WORKS", "false", 1)
}
